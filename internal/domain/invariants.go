package domain

// InvariantsFileKey is the file key of the mandatory invariants document.
// The context assembler loads it first for every consumer, whether or not
// the consumer's assignment list mentions it.
const InvariantsFileKey = "MKF_00"

// InvariantFact is one mandatory business fact. The facts below are the
// single source of truth: the assembler's enforcement footer and the
// fallback context both render from this table, so the two can never
// drift apart.
type InvariantFact struct {
	Label string
	Value string
}

// InvariantFacts returns the mandatory facts in render order.
func InvariantFacts() []InvariantFact {
	return []InvariantFact{
		{Label: "Business", Value: "Call Kaids Roofing, Clyde North, SE Melbourne"},
		{Label: "ABN", Value: "39475055075"},
		{Label: "Phone", Value: "0435 900 909"},
		{Label: "Email", Value: "info@callkaidsroofing.com.au"},
		{Label: "Colours", Value: "#007ACC #0B3B69 #111827 #6B7280 #F7F8FA #FFFFFF (NO orange)"},
		{Label: "Service area", Value: "SE Melbourne (<=50km from Clyde North)"},
		{Label: "Voice", Value: "Switched-on, down-to-earth, educate > upsell"},
		{Label: "Claims", Value: `"Fully insured." Warranty = "7-10 year warranty"`},
		{Label: "Never use", Value: `"cheapest", "#1", stock photos`},
	}
}
