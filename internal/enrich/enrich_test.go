package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealsync/pkg/enerflo"
	"github.com/sells-group/dealsync/pkg/quickbase"
)

type fakeSource struct {
	deal     *enerflo.Deal
	customer *enerflo.Customer
	dealErr  error
}

func (f *fakeSource) GetDeal(ctx context.Context, dealID string) (*enerflo.Deal, error) {
	return f.deal, f.dealErr
}

func (f *fakeSource) GetCustomer(ctx context.Context, customerID string) (*enerflo.Customer, error) {
	return f.customer, nil
}

type fakeUpdater struct {
	mu       sync.Mutex
	recordID int
	fields   map[int]quickbase.FieldValue
	calls    int
	err      error
}

func (f *fakeUpdater) Update(ctx context.Context, recordID int, fields map[int]quickbase.FieldValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.recordID = recordID
	f.fields = fields
	return f.err
}

func TestBuildPatch(t *testing.T) {
	deal := &enerflo.Deal{
		ID:        "D1",
		CreatedAt: "2025-06-01T10:00:00Z",
		SalesRep:  &enerflo.Rep{ID: "R1", Name: "Riley Rep"},
		SalesTeam: &enerflo.Team{ID: "T1", Name: "Mountain West"},
		LeadOwner: &enerflo.Rep{ID: "R9", Name: "Sam Setter"},
		WelcomeCall: &enerflo.WelcomeCall{
			ID:       "W1",
			Date:     "2025-06-02T09:00:00Z",
			Duration: 320,
			Agent:    "Agent A",
			Outcome:  "passed",
		},
		Notes: []enerflo.Note{
			{Content: "first", Author: "Riley Rep", Category: "general", CreatedAt: "2025-06-01T11:00:00Z"},
			{Content: "latest", Author: "Sam Setter", Category: "general", CreatedAt: "2025-06-03T11:00:00Z"},
		},
		Financing: &enerflo.Financing{
			Type:       "loan",
			LenderName: "GoodLeap",
			Status:     "approved",
			TermMonths: 300,
			Submitted:  true,
		},
	}

	patch := BuildPatch(deal, nil)

	assert.Equal(t, "R1", patch[fieldSalesRepID].Value)
	assert.Equal(t, "Mountain West", patch[fieldSalesTeamName].Value)
	assert.Equal(t, "Riley Rep", patch[fieldCloser].Value)
	assert.Equal(t, "Sam Setter", patch[fieldSetter].Value)
	assert.Equal(t, "W1", patch[fieldWelcomeCallID].Value)
	assert.Equal(t, float64(320), patch[fieldWelcomeCallDur].Value)
	assert.Equal(t, float64(2), patch[fieldNotesCount].Value)
	assert.Equal(t, "latest", patch[fieldLatestNoteText].Value)
	assert.Equal(t, "Riley Rep, Sam Setter", patch[fieldNoteAuthors].Value)
	assert.Equal(t, "GoodLeap", patch[fieldLenderName].Value)
	assert.Equal(t, true, patch[fieldSubmittedFin].Value)
	assert.Equal(t, "2025-06-01T10:00:00Z", patch[fieldDealCreatedDate].Value)
}

func TestBuildPatchSetterFallsBackToCustomer(t *testing.T) {
	customer := &enerflo.Customer{LeadOwner: &enerflo.Rep{ID: "R9", Name: "Sam Setter"}}

	patch := BuildPatch(nil, customer)
	assert.Equal(t, "Sam Setter", patch[fieldSetter].Value)

	// The deal's lead owner wins over the customer's.
	deal := &enerflo.Deal{LeadOwner: &enerflo.Rep{ID: "R2", Name: "Dana Deal"}}
	patch = BuildPatch(deal, customer)
	assert.Equal(t, "Dana Deal", patch[fieldSetter].Value)
}

func TestBuildPatchWizardBlocks(t *testing.T) {
	deal := &enerflo.Deal{
		SiteSurvey:     &enerflo.SiteSurvey{Scheduled: true, Selection: "drone"},
		AdditionalWork: &enerflo.AdditionalWork{Needed: true, Types: "re-roof, tree removal"},
		Contract:       &enerflo.Contract{Generated: true, ApprovalEnabled: true},
		Shading:        &enerflo.Shading{Concerns: true},
		NewMoveIn:      "moved in 2024",
		ReadyToSubmit:  true,
	}

	patch := BuildPatch(deal, nil)
	require.NotEmpty(t, patch)

	assert.Equal(t, true, patch[fieldSiteSurveySched].Value)
	assert.Equal(t, "drone", patch[fieldSiteSurveySelect].Value)
	assert.Equal(t, true, patch[fieldAddWorkNeeded].Value)
	assert.Equal(t, "re-roof, tree removal", patch[fieldAddWorkTypes].Value)
	assert.Equal(t, true, patch[fieldContractGenerated].Value)
	assert.Equal(t, false, patch[fieldNoDocsToSign].Value)
	assert.Equal(t, true, patch[fieldContractApproval].Value)
	assert.Equal(t, true, patch[fieldShadingConcerns].Value)
	assert.Equal(t, "moved in 2024", patch[fieldNewMoveIn].Value)
	assert.Equal(t, true, patch[fieldReadyToSubmit].Value)
}

func TestBuildPatchEmptyInputs(t *testing.T) {
	assert.Empty(t, BuildPatch(nil, nil))

	// A bare deal still refreshes the ready-to-submit flag; absent wizard
	// blocks never produce field writes.
	patch := BuildPatch(&enerflo.Deal{}, &enerflo.Customer{})
	assert.Equal(t, map[int]quickbase.FieldValue{
		fieldReadyToSubmit: {Value: false},
	}, patch)
}

func TestRunPatchesKnownRecord(t *testing.T) {
	source := &fakeSource{
		deal: &enerflo.Deal{SalesRep: &enerflo.Rep{ID: "R1", Name: "Riley Rep"}},
	}
	dest := &fakeUpdater{}

	e := New(source, dest, 5*time.Second)
	e.Run(42, "D1", "C1")

	require.Equal(t, 1, dest.calls)
	assert.Equal(t, 42, dest.recordID)
	assert.Equal(t, "R1", dest.fields[fieldSalesRepID].Value)
}

func TestRunGivesUpOnFetchFailure(t *testing.T) {
	source := &fakeSource{dealErr: errors.New("enerflo down")}
	dest := &fakeUpdater{}

	e := New(source, dest, time.Second)
	e.Run(42, "D1", "C1")

	assert.Zero(t, dest.calls, "failed fetch must not touch the destination")
}

func TestRunGivesUpOnPatchFailure(t *testing.T) {
	source := &fakeSource{
		deal: &enerflo.Deal{SalesRep: &enerflo.Rep{ID: "R1"}},
	}
	dest := &fakeUpdater{err: errors.New("quickbase down")}

	e := New(source, dest, time.Second)
	// Must return normally; failure is logged and abandoned.
	e.Run(42, "D1", "C1")

	assert.Equal(t, 1, dest.calls)
}

func TestRunSkipsEmptyPatch(t *testing.T) {
	source := &fakeSource{}
	dest := &fakeUpdater{}

	e := New(source, dest, time.Second)
	e.Run(42, "D1", "C1")

	assert.Zero(t, dest.calls)
}
