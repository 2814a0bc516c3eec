package proposal

import (
	"fmt"
	"strings"
)

// Anchor scales the monetization guidance relative to the stated
// worth.
type Anchor struct {
	MinMultiple float64
	MaxMultiple float64
}

func (a Anchor) orDefault() Anchor {
	if a.MinMultiple <= 0 {
		a.MinMultiple = 5
	}
	if a.MaxMultiple <= a.MinMultiple {
		a.MaxMultiple = 2 * a.MinMultiple
	}
	return a
}

// BuildDirective constructs the system and user messages for one
// generation call.
func BuildDirective(task string, statedWorth float64, anchor Anchor) (system, user string) {
	anchor = anchor.orDefault()
	system = strings.Join([]string{
		"You are an agency operations lead designing a SAME-DAY done-for-you service offer for a task someone is avoiding.",
		"Output must be practical, concrete, and executable by a virtual agent within 24 hours.",
		fmt.Sprintf("Anchor monetization to %.0f-%.0fx the dollar worth the user assigned to the task: stack individually priced deliverables whose combined value lands in that range.", anchor.MinMultiple, anchor.MaxMultiple),
		"The suggested price must be at least the user's stated worth and at most one third of the total stacked value: stated_worth <= suggested_price_usd <= total_value_usd / 3.",
		"Assume an agent can: research, draft emails, create checklists/docs, book calls/appointments, gather quotes, set up simple automations, and follow up.",
		"Prefer solutions that reach DONE or near-done without the user, or that reduce the user's effort to under 15 minutes.",
		"Be specific about steps, success criteria, and what is sent back to the user, and state a concrete guarantee.",
	}, " ")
	user = fmt.Sprintf("Task user is avoiding: %q. The user says getting it done is worth $%.2f to them.", strings.TrimSpace(task), statedWorth)
	return system, user
}
