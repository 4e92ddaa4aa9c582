// internal/agent/models.go
package agent

import (
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// ActionType is an enumeration of all actions the reasoning model may propose.
// This is a closed vocabulary; anything else is rejected at parse time.
type ActionType string

const (
	// -- Page Interaction --
	ActionClick  ActionType = "CLICK"  // Clicks the element behind a selector.
	ActionFill   ActionType = "FILL"   // Types text into an input field.
	ActionPress  ActionType = "PRESS"  // Sends a key chord to an element.
	ActionScroll ActionType = "SCROLL" // Scrolls the page up or down.

	// -- Harvesting --
	ActionExtract         ActionType = "EXTRACT"          // Appends result items from the page.
	ActionExtractSelector ActionType = "EXTRACT_SELECTOR" // Searches the live DOM for selector candidates.

	// -- Collaborator Delegation --
	ActionDismissPopup     ActionType = "DISMISS_POPUP"      // Best-effort overlay dismissal.
	ActionRequestUserInput ActionType = "REQUEST_USER_INPUT" // Suspends for operator-supplied input.
	ActionSolveCaptcha     ActionType = "SOLVE_CAPTCHA"      // Delegates to the captcha collaborator.

	// -- Mission Control --
	ActionFinish ActionType = "FINISH" // Requests mission termination.
)

// Action is a single proposed page interaction. Actions are immutable once
// proposed; the executor may replace one wholesale but never edits fields.
type Action struct {
	Type ActionType `json:"type"`

	// Thought carries the model's chain of reasoning for the step. Kept for
	// the audit trail, never used for control decisions.
	Thought string `json:"thought,omitempty"`

	Selector   string                 `json:"selector,omitempty"`    // Target element for CLICK/FILL/PRESS.
	Text       string                 `json:"text,omitempty"`        // Text for FILL, may hold a {{...}} placeholder.
	Key        string                 `json:"key,omitempty"`         // Key chord for PRESS, e.g. "Enter".
	Direction  string                 `json:"direction,omitempty"`   // "up" or "down" for SCROLL.
	SearchText string                 `json:"search_text,omitempty"` // Visible text for EXTRACT_SELECTOR.
	Items      []schemas.ExtractedItem `json:"items,omitempty"`      // Harvested items for EXTRACT.
	Reason     string                 `json:"reason,omitempty"`      // Justification for FINISH.
	Prompt     string                 `json:"prompt,omitempty"`      // Operator-facing prompt for REQUEST_USER_INPUT.
	InputType  string                 `json:"input_type,omitempty"`  // "text", "password", "otp" for REQUEST_USER_INPUT.
	Sensitive  bool                   `json:"sensitive,omitempty"`   // Marks the requested input as secret.
}

// OutcomeKind classifies what the executor did with one proposed action.
// Callers branch on this instead of catching exceptions.
type OutcomeKind string

const (
	OutcomeBlocked           OutcomeKind = "BLOCKED"            // Banned signature, page untouched.
	OutcomeProtocolViolation OutcomeKind = "PROTOCOL_VIOLATION" // Testing protocol broken, page untouched.
	OutcomeExecuted          OutcomeKind = "EXECUTED"           // Page operation ran (verification may still be weak).
	OutcomeFailed            OutcomeKind = "FAILED"             // Page operation raised; signature is now banned.
)

// Outcome is the executor's typed result for a single step. Err is populated
// for FAILED and PROTOCOL_VIOLATION and describes, not aborts, the step.
type Outcome struct {
	Kind         OutcomeKind
	Signature    string
	Verification *VerificationResult
	Notes        []string
	Err          error
}

// VerificationResult captures the post-execution page inspection.
type VerificationResult struct {
	Success         bool
	ChangesDetected bool
	Notes           []string
	ScreenshotPath  string
}

// VerificationRecord is a bounded history entry of one verification pass.
type VerificationRecord struct {
	Step            int
	Action          ActionType
	Selector        string
	Success         bool
	ChangesDetected bool
	Notes           []string
}

// InteractionRecord logs one selector-validation sweep for a search text.
type InteractionRecord struct {
	Step         int
	SearchText   string
	WorkingCount int
	FailedCount  int
	BestSelector string
}

// ElementTestingContext tracks an in-progress exhaustive selector testing
// protocol. While TestingRequired is true, the only acceptable next action is
// a click/fill/press against UntestedSelectors[CurrentTestIndex].
type ElementTestingContext struct {
	SearchText        string
	UntestedSelectors []string
	CurrentTestIndex  int
	TestingRequired   bool
}

// ExpectedSelector returns the selector the protocol currently demands, or
// "" when the list is exhausted.
func (c *ElementTestingContext) ExpectedSelector() string {
	if c == nil || c.CurrentTestIndex >= len(c.UntestedSelectors) {
		return ""
	}
	return c.UntestedSelectors[c.CurrentTestIndex]
}

// Remaining returns how many selectors are still owed to the protocol.
func (c *ElementTestingContext) Remaining() int {
	if c == nil {
		return 0
	}
	n := len(c.UntestedSelectors) - c.CurrentTestIndex
	if n < 0 {
		return 0
	}
	return n
}

// SearchFlowState tracks progress through the canonical "use the search box"
// protocol. Flags are monotonic; once set they never clear for the mission.
type SearchFlowState struct {
	Detected  bool
	Clicked   bool
	Filled    bool
	Submitted bool
}

// UserInputState is the one-shot gate between a suspended mission and an
// external operator. Response must be consumed by at most one fill.
type UserInputState struct {
	Pending     bool
	Request     *schemas.UserInputRequest
	Response    string
	HasResponse bool
	FlowActive  bool
}

// MissionResult is the final artifact handed back to the caller.
type MissionResult struct {
	Results     []schemas.ExtractedItem
	Screenshots []string
	Steps       int
	StopReason  string
	StartTime   time.Time
	EndTime     time.Time
}
