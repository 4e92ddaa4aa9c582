// internal/agent/fallback.go
package agent

// Emergency substitutes for a failed reasoner. The loop must keep moving even
// when the model times out or returns garbage, so each failure shape maps to
// one deterministic, always-safe action. The table is data so the mapping is
// testable without a model in the loop.

// fallbackRule describes one row of the policy table.
type fallbackRule struct {
	category FailureCategory
	action   Action
}

var fallbackPolicy = []fallbackRule{
	{FailureElementNotFound, Action{Type: ActionScroll, Direction: "down", Thought: "fallback: prior element lookups failed, scrolling for new content"}},
	{FailureTimeout, Action{Type: ActionScroll, Direction: "down", Thought: "fallback: page operations timing out, scrolling to force a settle"}},
	{FailureNavigation, Action{Type: ActionScroll, Direction: "up", Thought: "fallback: navigation errors recorded, scrolling back up to reorient"}},
	{FailureUserInput, Action{Type: ActionScroll, Direction: "down", Thought: "fallback: user input timed out, continuing without it"}},
	{FailureGeneric, Action{Type: ActionScroll, Direction: "down", Thought: "fallback: reasoner unavailable, scrolling"}},
}

// FallbackAction picks the emergency action for a mission whose reasoner
// failed. Dominant recorded failure category wins; with no failures at all,
// step parity alternates scroll direction so repeated fallbacks still cover
// the page.
func FallbackAction(m *MissionState) Action {
	analysis := m.failureAnalysis()

	var dominant FailureCategory
	best := 0
	for _, rule := range fallbackPolicy {
		if count := analysis[rule.category]; count > best {
			best = count
			dominant = rule.category
		}
	}

	if best > 0 {
		for _, rule := range fallbackPolicy {
			if rule.category == dominant {
				return rule.action
			}
		}
	}

	direction := "down"
	if m.Step%2 == 0 {
		direction = "up"
	}
	return Action{
		Type:      ActionScroll,
		Direction: direction,
		Thought:   "fallback: reasoner returned nothing usable, scrolling " + direction,
	}
}
