// Package enrich implements the post-upsert enrichment pass: a second,
// asynchronous write that patches a just-synced record with data only
// available from the Enerflo APIs, not the webhook payload.
package enrich

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dealsync/internal/resilience"
	"github.com/sells-group/dealsync/pkg/enerflo"
	"github.com/sells-group/dealsync/pkg/quickbase"
)

// Enrichment-only destination fields. The webhook payload never carries
// these; they exist solely for this pass.
const (
	fieldSalesRepID       = 65
	fieldSalesTeamName    = 66
	fieldSalesTeamID      = 67
	fieldWelcomeCallID    = 171
	fieldWelcomeCallDate  = 172
	fieldWelcomeCallDur   = 173
	fieldWelcomeCallURL   = 174
	fieldWelcomeCallQJSON = 175
	fieldWelcomeCallAJSON = 176
	fieldWelcomeCallAgent = 177
	fieldWelcomeCallOut   = 178
	fieldNotesCount       = 179
	fieldLatestNoteText   = 180
	fieldLatestNoteDate   = 181
	fieldLatestNoteAuthor = 182
	fieldAllNotesJSON     = 183
	fieldNoteCategories   = 184
	fieldNoteAuthors      = 185
	fieldDealCreatedDate  = 186
	fieldDealUpdatedDate  = 187
	fieldFinanceType      = 135
	fieldFinanceProduct   = 136
	fieldFinanceProductID = 137
	fieldLenderName       = 138
	fieldFinancingStatus  = 139
	fieldLoanTermMonths   = 140
	fieldPaymentStructure = 141
	fieldDownPayMethod    = 142
	fieldSubmittedFin     = 157
	fieldSignedFinDocs    = 158
	fieldSetter           = 218
	fieldCloser           = 219
)

// Wizard-state fields the webhook payload also writes. The pass refreshes
// them with the API's current values, which can move between the initial
// sync and the enrichment fetch.
const (
	fieldSiteSurveySched   = 45
	fieldAddWorkNeeded     = 46
	fieldAddWorkTypes      = 124
	fieldContractGenerated = 156
	fieldNoDocsToSign      = 159
	fieldContractApproval  = 160
	fieldReadyToSubmit     = 161
	fieldSiteSurveySelect  = 163
	fieldNewMoveIn         = 164
	fieldShadingConcerns   = 166
)

// Updater is the destination-side patch operation.
type Updater interface {
	Update(ctx context.Context, recordID int, fields map[int]quickbase.FieldValue) error
}

// Enricher runs the enrichment pass for one synced deal.
type Enricher struct {
	source  enerflo.Client
	dest    Updater
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	log     *zap.Logger
}

// New wires an enricher. timeout bounds the whole pass including the
// destination patch.
func New(source enerflo.Client, dest Updater, timeout time.Duration) *Enricher {
	return &Enricher{
		source:  source,
		dest:    dest,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		timeout: timeout,
		log:     zap.L().Named("enrich"),
	}
}

// Run executes one enrichment pass. It is designed to be launched in its
// own goroutine after the webhook response is sent: it derives its own
// context so the HTTP request's cancellation cannot reach it, and it
// never returns an error. Failure at any stage is logged and abandoned;
// the primary record already stands and a webhook redelivery re-runs the
// pass naturally.
func (e *Enricher) Run(recordID int, dealID, customerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	log := e.log.With(zap.String("deal_id", dealID), zap.Int("record_id", recordID))

	var deal *enerflo.Deal
	var customer *enerflo.Customer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.breaker.Execute(func() error {
			var err error
			deal, err = e.source.GetDeal(gctx, dealID)
			return err
		})
	})
	g.Go(func() error {
		return e.breaker.Execute(func() error {
			var err error
			customer, err = e.source.GetCustomer(gctx, customerID)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		log.Warn("enrichment fetch failed, giving up", zap.Error(err))
		return
	}

	patch := BuildPatch(deal, customer)
	if len(patch) == 0 {
		log.Debug("no enrichment data available")
		return
	}

	if err := e.dest.Update(ctx, recordID, patch); err != nil {
		log.Warn("enrichment patch failed, giving up", zap.Error(err))
		return
	}
	log.Info("enrichment applied", zap.Int("fields", len(patch)))
}

// BuildPatch projects fetched source data onto the enrichment-only field
// slots. Either input may be nil.
func BuildPatch(deal *enerflo.Deal, customer *enerflo.Customer) map[int]quickbase.FieldValue {
	patch := make(map[int]quickbase.FieldValue)
	set := func(fid int, v any) {
		patch[fid] = quickbase.FieldValue{Value: v}
	}

	if deal != nil {
		if deal.SalesRep != nil {
			set(fieldSalesRepID, deal.SalesRep.ID)
			set(fieldCloser, repDisplay(deal.SalesRep))
		}
		if deal.SalesTeam != nil {
			set(fieldSalesTeamName, deal.SalesTeam.Name)
			set(fieldSalesTeamID, deal.SalesTeam.ID)
		}
		if deal.LeadOwner != nil {
			set(fieldSetter, repDisplay(deal.LeadOwner))
		}
		if deal.CreatedAt != "" {
			set(fieldDealCreatedDate, deal.CreatedAt)
		}
		if deal.UpdatedAt != "" {
			set(fieldDealUpdatedDate, deal.UpdatedAt)
		}

		if wc := deal.WelcomeCall; wc != nil {
			set(fieldWelcomeCallID, wc.ID)
			set(fieldWelcomeCallDate, wc.Date)
			set(fieldWelcomeCallDur, wc.Duration)
			set(fieldWelcomeCallURL, wc.RecordingURL)
			set(fieldWelcomeCallAgent, wc.Agent)
			set(fieldWelcomeCallOut, wc.Outcome)
			if len(wc.Questions) > 0 {
				set(fieldWelcomeCallQJSON, string(wc.Questions))
			}
			if len(wc.Answers) > 0 {
				set(fieldWelcomeCallAJSON, string(wc.Answers))
			}
		}

		if len(deal.Notes) > 0 {
			set(fieldNotesCount, float64(len(deal.Notes)))
			latest := deal.Notes[len(deal.Notes)-1]
			set(fieldLatestNoteText, latest.Content)
			set(fieldLatestNoteDate, latest.CreatedAt)
			set(fieldLatestNoteAuthor, latest.Author)
			if blob, err := json.Marshal(deal.Notes); err == nil {
				set(fieldAllNotesJSON, string(blob))
			}
			set(fieldNoteCategories, uniqueJoined(deal.Notes, func(n enerflo.Note) string { return n.Category }))
			set(fieldNoteAuthors, uniqueJoined(deal.Notes, func(n enerflo.Note) string { return n.Author }))
		}

		if fin := deal.Financing; fin != nil {
			set(fieldFinanceType, fin.Type)
			set(fieldFinanceProduct, fin.ProductName)
			set(fieldFinanceProductID, fin.ProductID)
			set(fieldLenderName, fin.LenderName)
			set(fieldFinancingStatus, fin.Status)
			set(fieldLoanTermMonths, fin.TermMonths)
			set(fieldPaymentStructure, fin.PaymentStructure)
			set(fieldDownPayMethod, fin.DownPaymentMethod)
			set(fieldSubmittedFin, fin.Submitted)
			set(fieldSignedFinDocs, fin.SignedDocs)
		}

		if ss := deal.SiteSurvey; ss != nil {
			set(fieldSiteSurveySched, ss.Scheduled)
			set(fieldSiteSurveySelect, ss.Selection)
		}
		if aw := deal.AdditionalWork; aw != nil {
			set(fieldAddWorkNeeded, aw.Needed)
			set(fieldAddWorkTypes, aw.Types)
		}
		if c := deal.Contract; c != nil {
			set(fieldContractGenerated, c.Generated)
			set(fieldNoDocsToSign, c.NoDocumentsToSign)
			set(fieldContractApproval, c.ApprovalEnabled)
		}
		if deal.Shading != nil {
			set(fieldShadingConcerns, deal.Shading.Concerns)
		}
		if deal.NewMoveIn != "" {
			set(fieldNewMoveIn, deal.NewMoveIn)
		}
		set(fieldReadyToSubmit, deal.ReadyToSubmit)
	}

	if customer != nil && customer.LeadOwner != nil {
		// The deal's lead owner wins when both are present.
		if _, ok := patch[fieldSetter]; !ok {
			set(fieldSetter, repDisplay(customer.LeadOwner))
		}
	}

	return patch
}

func repDisplay(r *enerflo.Rep) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

func uniqueJoined(notes []enerflo.Note, key func(enerflo.Note) string) string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range notes {
		k := key(n)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return strings.Join(out, ", ")
}
