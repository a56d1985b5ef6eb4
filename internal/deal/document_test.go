package deal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsNonObjects(t *testing.T) {
	for _, body := range []string{"", "not json", "[1,2,3]", `"string"`, "42"} {
		_, err := Parse([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

// Deeply missing paths return defaults and never panic, whatever the
// intermediate shapes are.
func TestPathExtractionSafety(t *testing.T) {
	doc, err := Parse([]byte(`{
		"event": "deal.projectSubmitted",
		"payload": {
			"deal": {"id": "D1", "state": null},
			"proposal": {"pricingOutputs": {"design": {"arrays": [{"moduleCount": 10}]}}}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "", doc.String("payload.proposal.pricingOutputs.deal.projectAddress.line1", ""))
	assert.Equal(t, float64(0), doc.Float("payload.deal.state.some.deep.path", 0))
	assert.Equal(t, false, doc.Bool("payload.nothing.here", false))
	assert.Equal(t, float64(10), doc.Float("payload.proposal.pricingOutputs.design.arrays.0.moduleCount", 0))
	assert.Equal(t, float64(0), doc.Float("payload.proposal.pricingOutputs.design.arrays.5.moduleCount", 0))

	// Explicit null is absence, not a value.
	assert.False(t, doc.Exists("payload.deal.state"))
}

func TestFirstPrefersEarlierPaths(t *testing.T) {
	doc, err := Parse([]byte(`{"a": {"x": 1}, "b": {"x": 2}}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), doc.First("a.x", "b.x").Int())
	assert.Equal(t, int64(2), doc.First("a.y", "b.x").Int())
	assert.False(t, doc.First("a.y", "b.y").Exists())
}

func TestAcceptNamesFirstMissingField(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{
			name:      "no event",
			body:      `{"payload": {"deal": {"id": "D"}, "customer": {"id": "C"}, "proposal": {"id": "P"}}}`,
			wantField: "event",
		},
		{
			name:      "no deal",
			body:      `{"event": "e", "payload": {"customer": {"id": "C"}, "proposal": {"id": "P"}}}`,
			wantField: "payload.deal",
		},
		{
			name:      "deal without id",
			body:      `{"event": "e", "payload": {"deal": {}, "customer": {"id": "C"}, "proposal": {"id": "P"}}}`,
			wantField: "payload.deal.id",
		},
		{
			name:      "no customer",
			body:      `{"event": "e", "payload": {"deal": {"id": "D"}, "proposal": {"id": "P"}}}`,
			wantField: "payload.customer",
		},
		{
			name:      "proposal without id",
			body:      `{"event": "e", "payload": {"deal": {"id": "D"}, "customer": {"id": "C"}, "proposal": {}}}`,
			wantField: "payload.proposal.id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.body))
			require.NoError(t, err)

			err = doc.Accept()
			require.Error(t, err)
			var shapeErr *ShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Equal(t, tt.wantField, shapeErr.Field)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestAcceptAnyEventTag(t *testing.T) {
	doc, err := Parse([]byte(`{"event": "deal.updated", "payload": {"deal": {"id": "D"}, "customer": {"id": "C"}, "proposal": {"id": "P"}}}`))
	require.NoError(t, err)
	assert.NoError(t, doc.Accept())
	assert.Equal(t, "deal.updated", doc.Event())
	assert.Equal(t, "D", doc.DealID())
	assert.Equal(t, "C", doc.CustomerID())
	assert.Equal(t, "P", doc.ProposalID())
}
