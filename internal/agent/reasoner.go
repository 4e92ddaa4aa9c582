// internal/agent/reasoner.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// maxHTMLContext bounds how much page HTML is shown to the model per step.
const maxHTMLContext = 20000

// LLMReasoner asks a language model for the next action and parses the
// answer into the closed action vocabulary.
type LLMReasoner struct {
	logger *zap.Logger
	client schemas.LLMClient
}

var _ Reasoner = (*LLMReasoner)(nil)

// NewLLMReasoner wraps an LLM client as the mission's decision-maker.
func NewLLMReasoner(logger *zap.Logger, client schemas.LLMClient) *LLMReasoner {
	return &LLMReasoner{
		logger: logger.Named("reasoner"),
		client: client,
	}
}

// proposalWire mirrors the JSON contract with the model. Action types arrive
// in whatever case the model felt like; normalization happens here.
type proposalWire struct {
	Thought string `json:"thought"`
	Action  struct {
		Type       string                  `json:"type"`
		Selector   string                  `json:"selector"`
		Text       string                  `json:"text"`
		Key        string                  `json:"key"`
		Direction  string                  `json:"direction"`
		SearchText string                  `json:"search_text"`
		Items      []schemas.ExtractedItem `json:"items"`
		Reason     string                  `json:"reason"`
		Prompt     string                  `json:"prompt"`
		InputType  string                  `json:"input_type"`
		Sensitive  bool                    `json:"sensitive"`
	} `json:"action"`
}

// validActionTypes is the closed vocabulary the wire type is checked against.
var validActionTypes = map[ActionType]struct{}{
	ActionClick: {}, ActionFill: {}, ActionPress: {}, ActionScroll: {},
	ActionExtract: {}, ActionExtractSelector: {}, ActionDismissPopup: {},
	ActionRequestUserInput: {}, ActionSolveCaptcha: {}, ActionFinish: {},
}

// ProposeAction runs one reasoning pass. Any failure here is recoverable:
// the loop substitutes a deterministic fallback instead of propagating.
func (r *LLMReasoner) ProposeAction(ctx context.Context, req ProposalRequest) (*Proposal, error) {
	response, err := r.client.GenerateResponse(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   r.buildUserPrompt(req),
		Tier:         schemas.TierFast,
	})
	if err != nil {
		return nil, fmt.Errorf("reasoner generation failed: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return nil, fmt.Errorf("reasoner returned empty text")
	}

	wire, err := llmutil.ParseJSONResponse[proposalWire](response)
	if err != nil {
		return nil, fmt.Errorf("reasoner returned malformed JSON: %w", err)
	}

	actionType := ActionType(strings.ToUpper(strings.TrimSpace(wire.Action.Type)))
	if _, ok := validActionTypes[actionType]; !ok {
		return nil, fmt.Errorf("reasoner proposed unknown action type %q", wire.Action.Type)
	}

	action := Action{
		Type:       actionType,
		Thought:    wire.Thought,
		Selector:   wire.Action.Selector,
		Text:       wire.Action.Text,
		Key:        wire.Action.Key,
		Direction:  wire.Action.Direction,
		SearchText: wire.Action.SearchText,
		Items:      wire.Action.Items,
		Reason:     wire.Action.Reason,
		Prompt:     wire.Action.Prompt,
		InputType:  wire.Action.InputType,
		Sensitive:  wire.Action.Sensitive,
	}
	r.logger.Debug("Action proposed",
		zap.String("type", string(action.Type)),
		zap.String("selector", action.Selector))
	return &Proposal{Thought: wire.Thought, Action: action}, nil
}

func (r *LLMReasoner) buildUserPrompt(req ProposalRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OBJECTIVE: %s\n", req.Query)
	fmt.Fprintf(&b, "CURRENT URL: %s\n", req.CurrentURL)
	fmt.Fprintf(&b, "STEP: %d of %d\n\n", req.Step, req.MaxSteps)

	if req.MemoryContext != "" {
		b.WriteString(req.MemoryContext)
		b.WriteString("\n")
	}
	if len(req.BannedSignatures) > 0 {
		fmt.Fprintf(&b, "BANNED ACTIONS (will be blocked, never propose): %s\n\n",
			strings.Join(req.BannedSignatures, ", "))
	}
	if req.PageHTML != "" {
		html := req.PageHTML
		if len(html) > maxHTMLContext {
			html = html[:maxHTMLContext]
		}
		fmt.Fprintf(&b, "PAGE HTML (truncated):\n%s\n", html)
	}
	b.WriteString("\nRespond with a single JSON object: {\"thought\": ..., \"action\": {\"type\": ...}}")
	return b.String()
}

// systemPrompt defines the action contract for the model. Selector values
// must come from EXTRACT_SELECTOR output, never be invented.
const systemPrompt = `You drive a web browser step by step to satisfy an objective.
Allowed action types: CLICK, FILL, PRESS, SCROLL, EXTRACT, EXTRACT_SELECTOR,
DISMISS_POPUP, REQUEST_USER_INPUT, SOLVE_CAPTCHA, FINISH.
Rules:
- Never invent selectors. Use EXTRACT_SELECTOR with short visible text to
  discover them, then test every returned selector in order as instructed.
- Use {{USER_INPUT}} as the text of a FILL that should receive operator input.
- Propose FINISH only when the objective is genuinely met or unreachable.
Respond with exactly one JSON object {"thought": string, "action": object}.`
