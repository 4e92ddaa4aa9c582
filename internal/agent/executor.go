// internal/agent/executor.go
package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// scrollDeltaThreshold is the minimum scroll movement (px) that counts as a
// successful scroll before falling back to the next strategy.
const scrollDeltaThreshold = 50

// searchTextMaxLen rejects selector-search texts that are clearly not
// visible UI text.
const searchTextMaxLen = 100

// codeLikeTokens mark a search text as machine-generated rather than visible
// text. The reasoner must never hand-author selectors.
var codeLikeTokens = []string{"<", ">", "{", "}", "class=", "id=", "xpath", "css", "selector", "//"}

// ExecutorConfig carries the operational tuning of the state machine.
type ExecutorConfig struct {
	ActionTimeout    time.Duration
	UserInputTimeout time.Duration
}

// actionHandler executes one action variant against the page and returns
// audit notes. A returned error is a page-operation failure unless it is an
// infrastructure error.
type actionHandler func(ctx context.Context, action Action, mem *MissionState) ([]string, error)

// Executor is the per-step state machine. Given one proposed action and the
// mission memory it executes, blocks, or rejects the action, then updates
// memory and advances the step counter exactly once, every time.
type Executor struct {
	logger    *zap.Logger
	page      schemas.Page
	captcha   schemas.CaptchaSolver
	gate      UserInputGate
	sink      schemas.StatusSink
	validator *SelectorValidator
	verifier  *Verifier
	cfg       ExecutorConfig
	handlers  map[ActionType]actionHandler

	// lastFillValue is the text the most recent fill actually typed, which
	// can differ from the proposed text after placeholder resolution. It is
	// handed to verification and never recorded in mission memory.
	lastFillValue string
}

// NewExecutor wires the state machine. captcha and sink may be nil; gate may
// be nil when the deployment has no operator channel.
func NewExecutor(
	logger *zap.Logger,
	page schemas.Page,
	captcha schemas.CaptchaSolver,
	gate UserInputGate,
	sink schemas.StatusSink,
	validator *SelectorValidator,
	verifier *Verifier,
	cfg ExecutorConfig,
) *Executor {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	if cfg.UserInputTimeout <= 0 {
		cfg.UserInputTimeout = 5 * time.Minute
	}
	e := &Executor{
		logger:    logger.Named("executor"),
		page:      page,
		captcha:   captcha,
		gate:      gate,
		sink:      sink,
		validator: validator,
		verifier:  verifier,
		cfg:       cfg,
	}
	e.handlers = map[ActionType]actionHandler{
		ActionClick:            e.handleClick,
		ActionFill:             e.handleFill,
		ActionPress:            e.handlePress,
		ActionScroll:           e.handleScroll,
		ActionExtract:          e.handleExtract,
		ActionExtractSelector:  e.handleExtractSelector,
		ActionDismissPopup:     e.handleDismissPopup,
		ActionRequestUserInput: e.handleRequestUserInput,
		ActionSolveCaptcha:     e.handleSolveCaptcha,
		ActionFinish:           e.handleFinish,
	}
	return e
}

// Execute runs one proposed action through the state machine. The returned
// error is non-nil only for infrastructure failures; every other outcome,
// including rejections and page failures, is reported through Outcome.
// The step counter advances exactly once on every path.
func (e *Executor) Execute(ctx context.Context, action Action, mem *MissionState) (*Outcome, error) {
	sig := Signature(action)
	mem.LastAction = action
	mem.RecordAttempt(sig)
	priorURL := e.page.URL()

	// 1. Banned signatures never reach the page again.
	if mem.IsBanned(sig) {
		alternatives := alternativeStrategies(action.Type)
		mem.RecordHistory(fmt.Sprintf(
			"BLOCKED DUPLICATE: %s failed %d time(s) before. Try instead: %s",
			sig, mem.FailureCount(sig), strings.Join(alternatives, "; ")))
		mem.AdvanceStep()
		e.logger.Info("Blocked banned action", zap.String("signature", sig))
		return &Outcome{Kind: OutcomeBlocked, Signature: sig, Notes: alternatives}, nil
	}

	// 2. Exhaustive-testing protocol enforcement.
	if violation := e.enforceTestingProtocol(action, mem); violation != nil {
		mem.RecordHistory("PROTOCOL VIOLATION: " + violation.Error())
		mem.AdvanceStep()
		e.logger.Warn("Rejected action for protocol violation",
			zap.String("signature", sig), zap.Error(violation))
		return &Outcome{Kind: OutcomeProtocolViolation, Signature: sig, Err: violation}, nil
	}

	// 3. Execute against the page.
	handler, ok := e.handlers[action.Type]
	if !ok {
		err := fmt.Errorf("unknown action type %q", action.Type)
		mem.BanAction(sig)
		mem.RecordHistory("FAILED: " + err.Error())
		mem.AdvanceStep()
		return &Outcome{Kind: OutcomeFailed, Signature: sig, Err: err}, nil
	}

	notes, err := handler(ctx, action, mem)
	if err != nil {
		e.lastFillValue = ""
		if IsInfrastructureError(err) {
			mem.RecordHistory("INFRASTRUCTURE FAILURE: " + err.Error())
			mem.AdvanceStep()
			return nil, fmt.Errorf("%w: %v", ErrMissionAborted, err)
		}
		category := ClassifyPageError(err)
		if action.Type == ActionRequestUserInput {
			// A timed-out operator wait must stay repeatable later in the
			// mission, so the fieldless signature is never banned.
			mem.RecordHistory(fmt.Sprintf("FAILED (%s): %s: %v", category, sig, err))
		} else {
			count := mem.BanAction(sig)
			mem.RecordHistory(fmt.Sprintf("FAILED (%s, attempt %d): %s: %v", category, count, sig, err))
		}
		mem.AdvanceStep()
		e.logger.Warn("Action failed",
			zap.String("signature", sig),
			zap.String("category", string(category)),
			zap.Error(err))
		return &Outcome{Kind: OutcomeFailed, Signature: sig, Notes: notes, Err: err}, nil
	}

	// 4. Post-execution bookkeeping.
	if e.sink != nil {
		e.sink.Push(mem.JobID, "verifying", map[string]interface{}{
			"step": mem.Step, "action": string(action.Type),
		})
	}
	verifyAction := action
	if action.Type == ActionFill && e.lastFillValue != "" {
		// Verify against what was actually typed, not the symbolic
		// placeholder the reasoner proposed.
		verifyAction.Text = e.lastFillValue
	}
	verification := e.verifier.Verify(ctx, e.page, verifyAction, priorURL, mem.Step)
	e.lastFillValue = ""
	if verification.ScreenshotPath != "" {
		mem.Screenshots = append(mem.Screenshots, verification.ScreenshotPath)
	}
	mem.RecordVerification(VerificationRecord{
		Step:            mem.Step,
		Action:          action.Type,
		Selector:        action.Selector,
		Success:         verification.Success,
		ChangesDetected: verification.ChangesDetected,
		Notes:           verification.Notes,
	})
	e.updateSearchFlow(action, verification, mem)

	allNotes := append(notes, verification.Notes...)
	mem.RecordHistory(fmt.Sprintf("EXECUTED %s: %s", sig, strings.Join(allNotes, "; ")))
	mem.AdvanceStep()

	return &Outcome{
		Kind:         OutcomeExecuted,
		Signature:    sig,
		Verification: verification,
		Notes:        allNotes,
	}, nil
}

// enforceTestingProtocol rejects anything but the exact expected interaction
// while an exhaustive-testing protocol is open. On an exact match the index
// advances before execution; when the list is exhausted the flag clears.
func (e *Executor) enforceTestingProtocol(action Action, mem *MissionState) error {
	tc := mem.TestingContext
	if tc == nil || !tc.TestingRequired || tc.Remaining() == 0 {
		return nil
	}

	expected := tc.ExpectedSelector()
	interactive := action.Type == ActionClick || action.Type == ActionFill || action.Type == ActionPress
	if !interactive || action.Selector != expected {
		proposed := string(action.Type)
		if action.Selector != "" {
			proposed += " " + action.Selector
		}
		return &ProtocolViolationError{
			ExpectedSelector: expected,
			CurrentIndex:     tc.CurrentTestIndex,
			Remaining:        tc.Remaining(),
			Proposed:         proposed,
		}
	}

	tc.CurrentTestIndex++
	if tc.CurrentTestIndex >= len(tc.UntestedSelectors) {
		tc.TestingRequired = false
		mem.RecordHistory(fmt.Sprintf("Selector testing complete for %q (%d tested)",
			tc.SearchText, len(tc.UntestedSelectors)))
	}
	return nil
}

// alternativeStrategies suggests 1-2 concrete moves for a banned action type
// so the reasoner has something better to do than retry.
func alternativeStrategies(t ActionType) []string {
	switch t {
	case ActionClick:
		return []string{"scroll to reveal a different element", "run EXTRACT_SELECTOR with different visible text"}
	case ActionFill:
		return []string{"click the field first, then fill", "re-extract the field selector"}
	case ActionPress:
		return []string{"click a submit button instead", "fill the field again before pressing"}
	case ActionExtractSelector:
		return []string{"scroll before searching again", "navigate to a more specific page"}
	default:
		return []string{"scroll for new content", "try a different action type"}
	}
}

// -- Action Handlers --

func (e *Executor) handleClick(ctx context.Context, action Action, _ *MissionState) ([]string, error) {
	if action.Selector == "" {
		return nil, fmt.Errorf("CLICK requires a selector")
	}
	if err := e.page.Locator(action.Selector).First().Click(ctx, e.cfg.ActionTimeout); err != nil {
		return nil, err
	}
	return []string{"clicked " + action.Selector}, nil
}

func (e *Executor) handlePress(ctx context.Context, action Action, _ *MissionState) ([]string, error) {
	if action.Selector == "" {
		return nil, fmt.Errorf("PRESS requires a selector")
	}
	key := action.Key
	if key == "" {
		key = "Enter"
	}
	if err := e.page.Locator(action.Selector).First().Press(ctx, key, e.cfg.ActionTimeout); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("pressed %s on %s", key, action.Selector)}, nil
}

func (e *Executor) handleFill(ctx context.Context, action Action, mem *MissionState) ([]string, error) {
	if action.Selector == "" {
		return nil, fmt.Errorf("FILL requires a selector")
	}

	text, consumed, note := e.resolveFillValue(ctx, action, mem)
	e.lastFillValue = text
	if err := e.page.Locator(action.Selector).First().Fill(ctx, text, e.cfg.ActionTimeout); err != nil {
		return nil, err
	}

	notes := []string{"filled " + action.Selector}
	if note != "" {
		notes = append(notes, note)
	}
	if consumed {
		// The gate closes the moment its response is typed somewhere.
		mem.UserInput.Response = ""
		mem.UserInput.HasResponse = false
		mem.UserInput.FlowActive = false
		if e.gate != nil {
			e.gate.Clear(mem.JobID)
		}
		notes = append(notes, "consumed pending user input")
	}
	return notes, nil
}

// resolveFillValue swaps symbolic placeholders, and password fields matched
// against a pending sensitive request, for the operator-supplied response.
// The literal proposed text wins only when the gate has nothing to offer.
func (e *Executor) resolveFillValue(ctx context.Context, action Action, mem *MissionState) (text string, consumed bool, note string) {
	text = action.Text
	if !mem.UserInput.HasResponse {
		return text, false, ""
	}

	if isInputPlaceholder(action.Text) {
		return mem.UserInput.Response, true, "resolved placeholder to user input"
	}

	// A sensitive response targeted at a password field overrides whatever
	// literal text the reasoner proposed.
	if mem.UserInput.Request != nil && mem.UserInput.Request.Sensitive {
		attrCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		fieldType, err := e.page.Locator(action.Selector).First().GetAttribute(attrCtx, "type")
		if err == nil && strings.EqualFold(fieldType, "password") {
			return mem.UserInput.Response, true, "password field matched pending sensitive input"
		}
	}
	return text, false, ""
}

// inputPlaceholders are the symbolic values the reasoner uses to reference
// operator input without ever seeing it.
var inputPlaceholders = []string{
	"{{USER_INPUT}}", "{{PASSWORD}}", "{{OTP}}", "{{CODE}}", "{{USERNAME}}", "{{EMAIL}}",
}

func isInputPlaceholder(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, p := range inputPlaceholders {
		if strings.EqualFold(trimmed, p) {
			return true
		}
	}
	return false
}

// handleScroll walks the fallback chain until the page actually moves:
// smooth scrollBy, keyboard paging, forced scrollTop, then the first
// scrollable descendant. The measured delta is reported either way.
func (e *Executor) handleScroll(ctx context.Context, action Action, _ *MissionState) ([]string, error) {
	direction := "down"
	if strings.EqualFold(action.Direction, "up") {
		direction = "up"
	}
	amount := 600
	if direction == "up" {
		amount = -600
	}

	before, err := e.scrollPosition(ctx)
	if err != nil {
		return nil, err
	}

	strategies := []struct {
		name string
		run  func(context.Context) error
	}{
		{"smooth", func(c context.Context) error {
			_, err := e.page.Evaluate(c, fmt.Sprintf("window.scrollBy({top: %d, behavior: 'smooth'})", amount))
			return err
		}},
		{"keyboard", func(c context.Context) error {
			key := "PageDown"
			if direction == "up" {
				key = "PageUp"
			}
			return e.page.PressKey(c, key)
		}},
		{"forced", func(c context.Context) error {
			_, err := e.page.Evaluate(c, fmt.Sprintf(
				"document.documentElement.scrollTop = Math.max(0, document.documentElement.scrollTop + %d)", amount))
			return err
		}},
		{"container", func(c context.Context) error {
			_, err := e.page.Evaluate(c, fmt.Sprintf(scrollContainerJS, amount))
			return err
		}},
	}

	var lastDelta float64
	for _, strategy := range strategies {
		if err := strategy.run(ctx); err != nil {
			if IsInfrastructureError(err) {
				return nil, err
			}
			continue
		}
		e.settle(ctx, 300*time.Millisecond)
		after, err := e.scrollPosition(ctx)
		if err != nil {
			return nil, err
		}
		lastDelta = after - before
		if lastDelta < 0 {
			lastDelta = -lastDelta
		}
		if lastDelta >= scrollDeltaThreshold {
			return []string{fmt.Sprintf("scrolled %s %.0fpx via %s", direction, lastDelta, strategy.name)}, nil
		}
	}

	// All strategies exhausted; not an error, the page may simply be at the
	// end of its scroll range.
	return []string{fmt.Sprintf("scroll %s moved only %.0fpx after all strategies", direction, lastDelta)}, nil
}

// scrollContainerJS scrolls the first scrollable descendant when the window
// itself will not move.
const scrollContainerJS = `(() => {
	const els = document.querySelectorAll('*');
	for (const el of els) {
		if (el.scrollHeight > el.clientHeight + 10) {
			const style = window.getComputedStyle(el);
			if (style.overflowY === 'auto' || style.overflowY === 'scroll') {
				el.scrollTop += %d;
				return el.scrollTop;
			}
		}
	}
	return 0;
})()`

func (e *Executor) scrollPosition(ctx context.Context) (float64, error) {
	v, err := e.page.Evaluate(ctx, "window.scrollY + (document.documentElement.scrollTop || 0)")
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, nil
	}
}

func (e *Executor) settle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// handleExtract appends harvested items, making every URL absolute against
// the current page first.
func (e *Executor) handleExtract(_ context.Context, action Action, mem *MissionState) ([]string, error) {
	if len(action.Items) == 0 {
		return nil, fmt.Errorf("EXTRACT carried no items")
	}

	base, baseErr := url.Parse(e.page.URL())
	for _, item := range action.Items {
		if baseErr == nil && item.URL != "" {
			if ref, err := url.Parse(item.URL); err == nil {
				item.URL = base.ResolveReference(ref).String()
			}
		}
		mem.Results = append(mem.Results, item)
	}
	return []string{fmt.Sprintf("extracted %d item(s), total %d", len(action.Items), len(mem.Results))}, nil
}

// handleExtractSelector is the selector-discovery tool. Implausible search
// texts and redundant re-searches are rejected before touching the DOM; a
// successful sweep installs a fresh mandatory-testing protocol.
func (e *Executor) handleExtractSelector(ctx context.Context, action Action, mem *MissionState) ([]string, error) {
	text := strings.TrimSpace(action.SearchText)
	if text == "" {
		return nil, fmt.Errorf("EXTRACT_SELECTOR requires search_text")
	}
	if len(text) > searchTextMaxLen {
		return nil, fmt.Errorf("search text too long (%d chars); use short visible UI text", len(text))
	}
	lower := strings.ToLower(text)
	for _, token := range codeLikeTokens {
		if strings.Contains(lower, token) {
			return nil, fmt.Errorf("search text looks like code (%q); search for visible text, never selectors", token)
		}
	}

	// Re-searching the same text is only allowed while its testing protocol
	// is still open; otherwise it is a dodge around mandatory testing.
	testingOpen := mem.TestingContext != nil &&
		strings.EqualFold(mem.TestingContext.SearchText, text) &&
		mem.TestingContext.TestingRequired
	if mem.RecentlyExtracted(text, 3) && !testingOpen {
		return nil, fmt.Errorf("text %q was already searched recently; test the selectors you have or search different text", text)
	}

	mem.RecordExtract(text)

	candidates, err := e.page.FindElementsByText(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no elements matched %q on the live page", text)
	}
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}

	validation, err := e.validator.Validate(ctx, e.page, candidates, text, mem)
	if err != nil {
		return nil, err
	}
	if len(validation.Working) == 0 {
		return nil, fmt.Errorf("none of %d probed selectors for %q were visible and enabled", validation.ProbesIssued, text)
	}

	mem.TestingContext = &ElementTestingContext{
		SearchText:        text,
		UntestedSelectors: validation.Working,
		CurrentTestIndex:  0,
		TestingRequired:   true,
	}
	if looksLikeSearchTarget(text) {
		mem.SetSearchFlowFlag(FlowDetected)
	}

	return []string{fmt.Sprintf(
		"found %d working selector(s) for %q; mandatory testing begins at %s",
		len(validation.Working), text, validation.Working[0])}, nil
}

func (e *Executor) handleDismissPopup(ctx context.Context, _ Action, _ *MissionState) ([]string, error) {
	// Best effort only. Escape closes most modals; anything fancier belongs
	// to a collaborator, not the core.
	if err := e.page.PressKey(ctx, "Escape"); err != nil {
		if IsInfrastructureError(err) {
			return nil, err
		}
		return []string{"popup dismissal attempted, no effect"}, nil
	}
	return []string{"sent Escape to dismiss overlays"}, nil
}

// handleRequestUserInput publishes the request and suspends the step on the
// gate. Timeout is a page-operation-class failure, but the signature is not
// banned and the gate is fully cleared so a fresh request stays possible.
func (e *Executor) handleRequestUserInput(ctx context.Context, action Action, mem *MissionState) ([]string, error) {
	if e.gate == nil {
		return nil, fmt.Errorf("no user input gate configured")
	}

	req := schemas.UserInputRequest{
		JobID:     mem.JobID,
		InputType: action.InputType,
		Prompt:    action.Prompt,
		Sensitive: action.Sensitive || strings.EqualFold(action.InputType, "password"),
		CreatedAt: time.Now().UTC(),
	}
	if err := e.gate.Request(mem.JobID, req); err != nil {
		return nil, fmt.Errorf("publishing user input request: %w", err)
	}
	mem.UserInput.Pending = true
	mem.UserInput.Request = &req
	if e.sink != nil {
		e.sink.Push(mem.JobID, "user_input_required", map[string]interface{}{
			"input_type": req.InputType,
			"prompt":     req.Prompt,
		})
	}

	value, err := e.gate.Await(ctx, mem.JobID, e.cfg.UserInputTimeout)
	if err != nil {
		// Full clear so the mission can ask again later.
		mem.UserInput = UserInputState{}
		e.gate.Clear(mem.JobID)
		return nil, fmt.Errorf("user input wait failed: %w", err)
	}

	mem.UserInput.Pending = false
	mem.UserInput.Response = value
	mem.UserInput.HasResponse = true
	mem.UserInput.FlowActive = true
	// Never log the value itself.
	return []string{fmt.Sprintf("received %s input from operator", req.InputType)}, nil
}

func (e *Executor) handleSolveCaptcha(ctx context.Context, _ Action, mem *MissionState) ([]string, error) {
	if e.captcha == nil {
		mem.CaptchaStatus = "no solver configured"
		return []string{"captcha solver not configured, continuing"}, nil
	}
	// Captcha outcomes are advisory; absence or failure never fails a step.
	outcome := e.captcha.SolveIfPresent(ctx, e.page, e.page.URL())
	switch {
	case !outcome.Found:
		mem.CaptchaStatus = "none detected"
	case outcome.Solved:
		mem.CaptchaStatus = fmt.Sprintf("solved %s via %s", outcome.Type, outcome.Service)
	default:
		mem.CaptchaStatus = fmt.Sprintf("detected %s but unsolved: %s", outcome.Type, outcome.Err)
	}
	e.logger.Info("Captcha pass complete", zap.String("status", mem.CaptchaStatus))
	return []string{"captcha: " + mem.CaptchaStatus}, nil
}

func (e *Executor) handleFinish(_ context.Context, action Action, _ *MissionState) ([]string, error) {
	// Termination is the supervisor's call, not the executor's.
	return []string{"finish requested: " + action.Reason}, nil
}

// updateSearchFlow raises the monotonic search-box flags from verified
// interactions against search-looking selectors.
func (e *Executor) updateSearchFlow(action Action, verification *VerificationResult, mem *MissionState) {
	if !looksLikeSearchSelector(action.Selector) {
		return
	}
	mem.SetSearchFlowFlag(FlowDetected)
	switch action.Type {
	case ActionClick:
		mem.SetSearchFlowFlag(FlowClicked)
	case ActionFill:
		if verification.Success {
			mem.SetSearchFlowFlag(FlowFilled)
		}
	case ActionPress:
		if verification.ChangesDetected {
			mem.SetSearchFlowFlag(FlowSubmitted)
		}
	}
}

func looksLikeSearchSelector(selector string) bool {
	lower := strings.ToLower(selector)
	return strings.Contains(lower, "search") ||
		strings.Contains(lower, "query") ||
		strings.Contains(lower, `name="q"`) ||
		strings.Contains(lower, "name='q'") ||
		strings.Contains(lower, "[name=q]")
}

func looksLikeSearchTarget(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "search") || strings.Contains(lower, "find")
}
