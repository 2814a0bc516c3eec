// Package proposal defines the generation contract: the structured
// envelope an upstream text-generation service must produce for a
// submitted task, the pricing bounds that make the output acceptable,
// and the decode chain that recovers the envelope from an imperfect
// service response.
package proposal

import "encoding/json"

// Deliverable is one priced artifact the agent hands back to the user.
type Deliverable struct {
	Description string  `json:"description"`
	ValueUSD    float64 `json:"value_usd"`
}

// Output is the schema-constrained proposal body.
type Output struct {
	Title                      string        `json:"title"`
	WhyItHelps                 string        `json:"why_it_helps"`
	StepsAgentWillDoToday      []string      `json:"steps_agent_will_do_today"`
	DeliverablesToUser         []Deliverable `json:"deliverables_to_user"`
	TotalValueUSD              float64       `json:"total_value_usd"`
	SuggestedPriceUSD          float64       `json:"suggested_price_usd"`
	SuccessCriteria            []string      `json:"success_criteria"`
	DependenciesOrAccessNeeded []string      `json:"dependencies_or_access_needed"`
	RiskMitigation             []string      `json:"risk_mitigation"`
	EstTimeHoursToday          float64       `json:"est_time_hours_today"`
	Guarantee                  string        `json:"guarantee"`
}

// Envelope is the full payload stored in an idea row. The agent note
// sits beside the proposal, not inside it.
type Envelope struct {
	Proposal          Output `json:"proposal"`
	QuickNoteForAgent string `json:"quick_note_for_agent"`
}

// DeliverableSum adds up the individually priced deliverables. Readers
// fall back to this when total_value_usd is absent or zero.
func (o Output) DeliverableSum() float64 {
	var sum float64
	for _, d := range o.DeliverablesToUser {
		sum += d.ValueUSD
	}
	return sum
}

// EffectiveTotal is the stacked value used for the pricing ceiling:
// the explicit field when present, the deliverable sum otherwise.
func (o Output) EffectiveTotal() float64 {
	if o.TotalValueUSD != 0 {
		return o.TotalValueUSD
	}
	return o.DeliverableSum()
}

// MarshalEnvelope renders the envelope exactly as persisted in the
// idea row's output column.
func MarshalEnvelope(env Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
