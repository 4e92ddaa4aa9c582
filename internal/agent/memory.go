// internal/agent/memory.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Caps on the bounded sub-logs. History proper is append-only and uncapped;
// the derived logs feeding the context summary keep only a recent window.
const (
	maxVerificationLog = 20
	maxInteractionLog  = 20
	maxRecentExtracts  = 5
)

// MissionState holds every piece of per-mission memory. It is owned
// exclusively by one mission's goroutine; no locking, one mission = one
// goroutine = one page.
type MissionState struct {
	JobID             string
	Query             string
	Step              int
	MaxSteps          int
	TargetResultCount int

	Results []schemas.ExtractedItem
	History []string

	LastAction Action

	failedActions       map[string]int
	attemptedSignatures []string

	recentExtracts      []string
	selectorAttempts    map[string]map[string]struct{}
	successfulSelectors map[string]string
	selectorOrder       []string

	verificationLog []VerificationRecord
	interactionLog  []InteractionRecord

	TestingContext *ElementTestingContext
	SearchFlow     SearchFlowState
	UserInput      UserInputState

	CaptchaStatus string
	Screenshots   []string
}

// NewMissionState creates the empty per-job state. Step starts at 1 and only
// the executor advances it.
func NewMissionState(jobID, query string, maxSteps, targetResultCount int) *MissionState {
	return &MissionState{
		JobID:               jobID,
		Query:               query,
		Step:                1,
		MaxSteps:            maxSteps,
		TargetResultCount:   targetResultCount,
		failedActions:       make(map[string]int),
		selectorAttempts:    make(map[string]map[string]struct{}),
		successfulSelectors: make(map[string]string),
	}
}

// -- History & Step --

// RecordHistory appends one human-readable audit entry.
func (m *MissionState) RecordHistory(entry string) {
	m.History = append(m.History, fmt.Sprintf("[step %d] %s", m.Step, entry))
}

// AdvanceStep increments the step counter. Every pass through the executor,
// executed or blocked, calls this exactly once.
func (m *MissionState) AdvanceStep() {
	m.Step++
}

// -- Ban List --

// BanAction increments the permanent failure count for a signature. Counts
// never decrement; presence alone means banned for the rest of the mission.
func (m *MissionState) BanAction(signature string) int {
	m.failedActions[signature]++
	return m.failedActions[signature]
}

// IsBanned reports whether a signature has ever failed.
func (m *MissionState) IsBanned(signature string) bool {
	_, ok := m.failedActions[signature]
	return ok
}

// FailureCount returns the recorded failure count for a signature.
func (m *MissionState) FailureCount(signature string) int {
	return m.failedActions[signature]
}

// BannedSignatures returns a snapshot of every banned signature.
func (m *MissionState) BannedSignatures() []string {
	out := make([]string, 0, len(m.failedActions))
	for sig := range m.failedActions {
		out = append(out, sig)
	}
	return out
}

// RecordAttempt appends to the full chronological signature record,
// including attempts that were later blocked.
func (m *MissionState) RecordAttempt(signature string) {
	m.attemptedSignatures = append(m.attemptedSignatures, signature)
}

// AttemptedSignatures returns the chronological attempt record.
func (m *MissionState) AttemptedSignatures() []string {
	return m.attemptedSignatures
}

// -- Extraction Cache --

// RecordExtract notes a selector-search text, keeping the last 5.
func (m *MissionState) RecordExtract(text string) {
	m.recentExtracts = append(m.recentExtracts, text)
	if len(m.recentExtracts) > maxRecentExtracts {
		m.recentExtracts = m.recentExtracts[len(m.recentExtracts)-maxRecentExtracts:]
	}
}

// RecentlyExtracted reports whether text appears in the last n extracts.
func (m *MissionState) RecentlyExtracted(text string, n int) bool {
	start := len(m.recentExtracts) - n
	if start < 0 {
		start = 0
	}
	for _, t := range m.recentExtracts[start:] {
		if strings.EqualFold(t, text) {
			return true
		}
	}
	return false
}

// RecentExtracts returns up to the last n search texts, oldest first.
func (m *MissionState) RecentExtracts(n int) []string {
	start := len(m.recentExtracts) - n
	if start < 0 {
		start = 0
	}
	return m.recentExtracts[start:]
}

// -- Selector Ledger --

// RecordSelectorAttempt marks a selector as tried for a search text,
// regardless of whether the probe worked.
func (m *MissionState) RecordSelectorAttempt(searchText, selector string) {
	set, ok := m.selectorAttempts[searchText]
	if !ok {
		set = make(map[string]struct{})
		m.selectorAttempts[searchText] = set
		m.selectorOrder = append(m.selectorOrder, searchText)
	}
	set[selector] = struct{}{}
}

// SelectorTried reports whether a selector was already probed for a text.
func (m *MissionState) SelectorTried(searchText, selector string) bool {
	_, ok := m.selectorAttempts[searchText][selector]
	return ok
}

// RecordSuccessfulSelector stores the best confirmed-working selector for a
// search text, replacing any earlier one.
func (m *MissionState) RecordSuccessfulSelector(searchText, selector string) {
	m.successfulSelectors[searchText] = selector
}

// SuccessfulSelector returns the confirmed selector for a text, if any.
func (m *MissionState) SuccessfulSelector(searchText string) (string, bool) {
	s, ok := m.successfulSelectors[searchText]
	return s, ok
}

// -- Verification & Interaction Logs --

// RecordVerification appends to the bounded verification log.
func (m *MissionState) RecordVerification(rec VerificationRecord) {
	m.verificationLog = append(m.verificationLog, rec)
	if len(m.verificationLog) > maxVerificationLog {
		m.verificationLog = m.verificationLog[len(m.verificationLog)-maxVerificationLog:]
	}
}

// RecordInteraction appends to the bounded selector-validation log.
func (m *MissionState) RecordInteraction(rec InteractionRecord) {
	m.interactionLog = append(m.interactionLog, rec)
	if len(m.interactionLog) > maxInteractionLog {
		m.interactionLog = m.interactionLog[len(m.interactionLog)-maxInteractionLog:]
	}
}

// -- Search Flow --

// SearchFlowFlag names one monotonic stage of the search-box protocol.
type SearchFlowFlag string

const (
	FlowDetected  SearchFlowFlag = "detected"
	FlowClicked   SearchFlowFlag = "clicked"
	FlowFilled    SearchFlowFlag = "filled"
	FlowSubmitted SearchFlowFlag = "submitted"
)

// SetSearchFlowFlag raises one stage flag. Flags never clear.
func (m *MissionState) SetSearchFlowFlag(flag SearchFlowFlag) {
	switch flag {
	case FlowDetected:
		m.SearchFlow.Detected = true
	case FlowClicked:
		m.SearchFlow.Clicked = true
	case FlowFilled:
		m.SearchFlow.Filled = true
	case FlowSubmitted:
		m.SearchFlow.Submitted = true
	}
}

// -- Failure Analysis --

// failureAnalysis buckets the ban list by category for the context summary.
func (m *MissionState) failureAnalysis() map[FailureCategory]int {
	out := make(map[FailureCategory]int)
	for sig, count := range m.failedActions {
		lower := strings.ToLower(sig)
		switch {
		case strings.HasPrefix(lower, "click"):
			out[FailureElementNotFound] += count
		case strings.HasPrefix(lower, "fill"), strings.HasPrefix(lower, "press"):
			out[FailureTimeout] += count
		case strings.HasPrefix(lower, "request_user_input"):
			out[FailureUserInput] += count
		default:
			out[FailureGeneric] += count
		}
	}
	return out
}

// -- Context Summary --

// ContextSummary renders the memory digest consumed by the reasoning model.
// Pure function of state: same state, same string. Sensitive user input is
// never included.
func (m *MissionState) ContextSummary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "MISSION MEMORY (step %d/%d, %d/%d results)\n",
		m.Step, m.MaxSteps, len(m.Results), m.TargetResultCount)

	// Recent verifications, newest last.
	if n := len(m.verificationLog); n > 0 {
		b.WriteString("\nRECENT VERIFICATIONS:\n")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, rec := range m.verificationLog[start:] {
			status := "no effect"
			if rec.Success {
				status = "verified"
			} else if rec.ChangesDetected {
				status = "changed, unverified"
			}
			fmt.Fprintf(&b, "- step %d %s %s: %s\n", rec.Step, rec.Action, rec.Selector, status)
		}
	}

	// Confirmed working selectors, most recent five texts.
	if len(m.successfulSelectors) > 0 {
		b.WriteString("\nCONFIRMED WORKING SELECTORS (reuse these):\n")
		shown := 0
		for i := len(m.selectorOrder) - 1; i >= 0 && shown < 5; i-- {
			text := m.selectorOrder[i]
			if sel, ok := m.successfulSelectors[text]; ok {
				fmt.Fprintf(&b, "- %q -> %s\n", text, sel)
				shown++
			}
		}
	}

	// Recent selector validation sweeps.
	if n := len(m.interactionLog); n > 0 {
		b.WriteString("\nRECENT ELEMENT SEARCHES:\n")
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, rec := range m.interactionLog[start:] {
			fmt.Fprintf(&b, "- step %d %q: %d working, %d failed, best %s\n",
				rec.Step, rec.SearchText, rec.WorkingCount, rec.FailedCount, rec.BestSelector)
		}
	}

	// Search flow progress with a next-step hint.
	if m.SearchFlow.Detected {
		fmt.Fprintf(&b, "\nSEARCH FLOW: detected=%t clicked=%t filled=%t submitted=%t\n",
			m.SearchFlow.Detected, m.SearchFlow.Clicked, m.SearchFlow.Filled, m.SearchFlow.Submitted)
		switch {
		case !m.SearchFlow.Clicked:
			b.WriteString("NEXT: click the search box before typing.\n")
		case !m.SearchFlow.Filled:
			b.WriteString("NEXT: fill the search box with the query.\n")
		case !m.SearchFlow.Submitted:
			b.WriteString("NEXT: press Enter or click the submit button.\n")
		default:
			b.WriteString("NEXT: extract results from the page.\n")
		}
	}

	// Failure analysis over the ban list.
	if len(m.failedActions) > 0 {
		fmt.Fprintf(&b, "\nFAILED ACTIONS (%d banned, never retry these):\n", len(m.failedActions))
		analysis := m.failureAnalysis()
		for _, category := range []FailureCategory{
			FailureElementNotFound, FailureTimeout, FailureNavigation, FailureUserInput, FailureGeneric,
		} {
			if count := analysis[category]; count > 0 {
				fmt.Fprintf(&b, "- %s: %d failure(s)\n", category, count)
			}
		}
	}

	// Recent extract texts guard against redundant re-extraction.
	if recent := m.RecentExtracts(3); len(recent) > 0 {
		fmt.Fprintf(&b, "\nRECENTLY SEARCHED TEXTS (do not repeat): %s\n", strings.Join(recent, ", "))
	}

	// Pending exhaustive testing overrides everything else.
	if m.TestingContext != nil && m.TestingContext.TestingRequired {
		fmt.Fprintf(&b, "\nMANDATORY TESTING: %d selector(s) untested for %q; next expected: %s\n",
			m.TestingContext.Remaining(), m.TestingContext.SearchText, m.TestingContext.ExpectedSelector())
	}

	if m.CaptchaStatus != "" {
		fmt.Fprintf(&b, "\nCAPTCHA: %s\n", m.CaptchaStatus)
	}

	if m.UserInput.Pending {
		b.WriteString("\nUSER INPUT: a request is pending; wait for the operator.\n")
	} else if m.UserInput.HasResponse {
		b.WriteString("\nUSER INPUT: a response is available; fill it with the {{USER_INPUT}} placeholder.\n")
	}

	return b.String()
}
