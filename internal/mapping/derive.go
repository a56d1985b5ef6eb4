package mapping

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sells-group/dealsync/internal/deal"
)

// Candidate paths tried in order; producer versions disagree on where the
// same structure lives.
var (
	arraysPaths = []string{
		"payload.proposal.pricingOutputs.design.arrays",
		"payload.proposal.design.arrays",
	}
	valueAdderPaths = []string{
		"payload.proposal.pricingOutputs.calculatedValueAdders",
		"payload.proposal.pricingOutputs.adderPricing.valueAdders",
	}
	systemAdderPaths = []string{
		"payload.proposal.pricingOutputs.calculatedSystemAdders",
		"payload.proposal.pricingOutputs.adderPricing.systemAdders",
	}
)

// Adder is one itemized cost adjustment from the proposal pricing output.
// Category is assigned from which source list the adder came from, not
// from any property on the adder itself.
type Adder struct {
	Name     string
	Cost     float64
	Category string
	PPW      float64
	Quantity float64
}

// deriveContext carries the document plus structures precomputed once per
// build so that the 30-odd adder and array derivations do not re-walk the
// payload.
type deriveContext struct {
	doc *deal.Document
	now func() time.Time

	arrays      []gjson.Result
	adders      []Adder
	valueCount  int
	systemCount int
	valueTotal  float64
	systemTotal float64
}

func newDeriveContext(doc *deal.Document, now func() time.Time) *deriveContext {
	dc := &deriveContext{doc: doc, now: now}

	if arr := doc.First(arraysPaths...); arr.IsArray() {
		dc.arrays = arr.Array()
	}

	value := doc.First(valueAdderPaths...)
	system := doc.First(systemAdderPaths...)
	for _, a := range value.Array() {
		dc.valueCount++
		dc.valueTotal += adderAmount(a)
		dc.adders = append(dc.adders, parseAdder(a, "Value"))
	}
	for _, a := range system.Array() {
		dc.systemCount++
		dc.systemTotal += adderAmount(a)
		dc.adders = append(dc.adders, parseAdder(a, "System"))
	}
	return dc
}

func adderAmount(a gjson.Result) float64 {
	return a.Get("amount").Float()
}

func parseAdder(a gjson.Result, category string) Adder {
	qty := a.Get("quantity").Float()
	if qty == 0 {
		qty = 1
	}
	name := a.Get("displayName").String()
	if name == "" {
		name = a.Get("name").String()
	}
	return Adder{
		Name:     name,
		Cost:     a.Get("amount").Float(),
		Category: category,
		PPW:      a.Get("ppw").Float(),
		Quantity: qty,
	}
}

// deriveFunc computes one field. The second return reports presence: a
// false means the destination field is omitted entirely rather than
// written with a default.
type deriveFunc func(dc *deriveContext) (any, bool)

var derivations = map[string]deriveFunc{
	"fullName":          deriveFullName,
	"fullAddress":       deriveFullAddress,
	"submittedAt":       deriveSubmittedAt,
	"systemSizeKW":      deriveSystemSizeKW,
	"systemSizeWatts":   deriveSystemSizeWatts,
	"panelCount":        derivePanelCount,
	"arrayCount":        deriveArrayCount,
	"offsetPercent":     deriveOffsetPercent,
	"downPaymentAmount": deriveDownPayment,
	"itcPercent":        deriveITCPercent,
	"dealerFeePercent":  deriveDealerFeePercent,
	"taxRate":           deriveTaxRate,
	"financingApproved": deriveFinancingApproved,
	"fileCount":         deriveFileCount,
	"adderTotal":        deriveAdderTotal,
	"valueAdderTotal":   deriveValueAdderTotal,
	"systemAdderTotal":  deriveSystemAdderTotal,
	"adderCount":        deriveAdderCount,
}

func init() {
	// Five fixed itemization blocks share one layout.
	for i := 0; i < 5; i++ {
		idx := i
		n := i + 1
		derivations[fmt.Sprintf("adder%dName", n)] = func(dc *deriveContext) (any, bool) {
			if a, ok := dc.adderAt(idx); ok {
				return a.Name, true
			}
			return nil, false
		}
		derivations[fmt.Sprintf("adder%dCost", n)] = func(dc *deriveContext) (any, bool) {
			if a, ok := dc.adderAt(idx); ok {
				return a.Cost, true
			}
			return nil, false
		}
		derivations[fmt.Sprintf("adder%dCategory", n)] = func(dc *deriveContext) (any, bool) {
			if a, ok := dc.adderAt(idx); ok {
				return a.Category, true
			}
			return nil, false
		}
		derivations[fmt.Sprintf("adder%dPPW", n)] = func(dc *deriveContext) (any, bool) {
			if a, ok := dc.adderAt(idx); ok {
				return a.PPW, true
			}
			return nil, false
		}
		derivations[fmt.Sprintf("adder%dQuantity", n)] = func(dc *deriveContext) (any, bool) {
			if a, ok := dc.adderAt(idx); ok {
				return a.Quantity, true
			}
			return nil, false
		}
	}
}

// adderAt returns the i-th combined adder. Entries past the fifth exist in
// dc.adders for totals but are never itemized.
func (dc *deriveContext) adderAt(i int) (Adder, bool) {
	if i >= len(dc.adders) || i >= 5 {
		return Adder{}, false
	}
	return dc.adders[i], true
}

func deriveFullName(dc *deriveContext) (any, bool) {
	first := dc.doc.String("payload.customer.firstName", "")
	last := dc.doc.String("payload.customer.lastName", "")
	return strings.TrimSpace(first + " " + last), true
}

func deriveFullAddress(dc *deriveContext) (any, bool) {
	addr := "payload.proposal.pricingOutputs.deal.projectAddress"
	if full := dc.doc.String(addr+".fullAddress", ""); full != "" {
		return full, true
	}
	parts := []string{}
	for _, key := range []string{".line1", ".city", ".state", ".postalCode"} {
		if p := dc.doc.String(addr+key, ""); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", "), true
}

func deriveSubmittedAt(dc *deriveContext) (any, bool) {
	if v := dc.doc.First("payload.deal.submittedAt", "payload.deal.createdAt"); v.Exists() {
		return v.Value(), true
	}
	return dc.now().UTC().Format(time.RFC3339), true
}

// deriveSystemSizeWatts prefers the explicit aggregate wattage the pricing
// output carries; older proposals lack it and the size is reconstructed
// from per-array module counts and capacities.
func deriveSystemSizeWatts(dc *deriveContext) (any, bool) {
	if v := dc.doc.First(
		"payload.proposal.pricingOutputs.design.totalSystemSizeWatts",
		"payload.proposal.pricingOutputs.systemSizeWatts",
	); v.Exists() {
		return v.Float(), true
	}
	var watts float64
	for _, arr := range dc.arrays {
		watts += arr.Get("moduleCount").Float() * arr.Get("module.capacity").Float()
	}
	return watts, true
}

func deriveSystemSizeKW(dc *deriveContext) (any, bool) {
	watts, _ := deriveSystemSizeWatts(dc)
	return watts.(float64) / 1000, true
}

func derivePanelCount(dc *deriveContext) (any, bool) {
	var count float64
	for _, arr := range dc.arrays {
		count += arr.Get("moduleCount").Float()
	}
	return count, true
}

func deriveArrayCount(dc *deriveContext) (any, bool) {
	return float64(len(dc.arrays)), true
}

func deriveOffsetPercent(dc *deriveContext) (any, bool) {
	offset := dc.doc.Float("payload.proposal.pricingOutputs.design.offset", 0)
	return math.Round(offset * 100), true
}

func deriveDownPayment(dc *deriveContext) (any, bool) {
	gross := dc.doc.Float("payload.proposal.pricingOutputs.grossCost", 0)
	fraction := dc.doc.Float("payload.proposal.pricingOutputs.downPayment", 0)
	return gross * fraction, true
}

func deriveITCPercent(dc *deriveContext) (any, bool) {
	gross := dc.doc.Float("payload.proposal.pricingOutputs.grossCost", 0)
	rebate := dc.doc.Float("payload.proposal.pricingOutputs.federalRebateTotal", 0)
	if gross == 0 {
		return float64(0), true
	}
	return rebate / gross, true
}

func deriveDealerFeePercent(dc *deriveContext) (any, bool) {
	return dc.doc.Float("payload.proposal.pricingOutputs.dealerFeePercent", 0) / 100, true
}

func deriveTaxRate(dc *deriveContext) (any, bool) {
	return dc.doc.Float("payload.proposal.pricingOutputs.taxRate", 0) / 100, true
}

func deriveFinancingApproved(dc *deriveContext) (any, bool) {
	return dc.doc.String("payload.deal.state.financingStatus", "") == "approved", true
}

func deriveFileCount(dc *deriveContext) (any, bool) {
	files := dc.doc.Get("payload.deal.files")
	if !files.IsArray() {
		return float64(0), true
	}
	return float64(len(files.Array())), true
}

func deriveAdderTotal(dc *deriveContext) (any, bool) {
	if v := dc.doc.First(
		"payload.proposal.pricingOutputs.valueAddersTotal",
		"payload.proposal.pricingOutputs.systemAddersTotal",
	); v.Exists() {
		value := dc.doc.Float("payload.proposal.pricingOutputs.valueAddersTotal", 0)
		system := dc.doc.Float("payload.proposal.pricingOutputs.systemAddersTotal", 0)
		return value + system, true
	}
	return dc.valueTotal + dc.systemTotal, true
}

func deriveValueAdderTotal(dc *deriveContext) (any, bool) {
	if v := dc.doc.Get("payload.proposal.pricingOutputs.valueAddersTotal"); v.Exists() {
		return v.Float(), true
	}
	return dc.valueTotal, true
}

func deriveSystemAdderTotal(dc *deriveContext) (any, bool) {
	if v := dc.doc.Get("payload.proposal.pricingOutputs.systemAddersTotal"); v.Exists() {
		return v.Float(), true
	}
	return dc.systemTotal, true
}

func deriveAdderCount(dc *deriveContext) (any, bool) {
	return float64(dc.valueCount + dc.systemCount), true
}
