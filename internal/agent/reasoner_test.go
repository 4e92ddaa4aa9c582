// internal/agent/reasoner_test.go
package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// fakeLLM returns a canned response and captures the request it received.
type fakeLLM struct {
	response string
	err      error
	lastReq  schemas.GenerationRequest
}

func (f *fakeLLM) GenerateResponse(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	f.lastReq = req
	return f.response, f.err
}

func TestLLMReasoner_ParsesPlainJSON(t *testing.T) {
	llm := &fakeLLM{response: `{"thought": "the button is visible", "action": {"type": "CLICK", "selector": "#submit"}}`}
	r := NewLLMReasoner(zap.NewNop(), llm)

	proposal, err := r.ProposeAction(context.Background(), ProposalRequest{Query: "buy", Step: 1, MaxSteps: 25})
	require.NoError(t, err)

	assert.Equal(t, ActionClick, proposal.Action.Type)
	assert.Equal(t, "#submit", proposal.Action.Selector)
	assert.Equal(t, "the button is visible", proposal.Thought)
	assert.Equal(t, schemas.TierFast, llm.lastReq.Tier)
}

func TestLLMReasoner_StripsMarkdownFence(t *testing.T) {
	llm := &fakeLLM{response: "Here is my plan:\n```json\n{\"thought\": \"t\", \"action\": {\"type\": \"SCROLL\", \"direction\": \"down\"}}\n```"}
	r := NewLLMReasoner(zap.NewNop(), llm)

	proposal, err := r.ProposeAction(context.Background(), ProposalRequest{})
	require.NoError(t, err)
	assert.Equal(t, ActionScroll, proposal.Action.Type)
	assert.Equal(t, "down", proposal.Action.Direction)
}

func TestLLMReasoner_NormalizesActionCase(t *testing.T) {
	llm := &fakeLLM{response: `{"thought": "t", "action": {"type": "extract_selector", "search_text": "Sign in"}}`}
	r := NewLLMReasoner(zap.NewNop(), llm)

	proposal, err := r.ProposeAction(context.Background(), ProposalRequest{})
	require.NoError(t, err)
	assert.Equal(t, ActionExtractSelector, proposal.Action.Type)
	assert.Equal(t, "Sign in", proposal.Action.SearchText)
}

func TestLLMReasoner_RejectsUnknownActionType(t *testing.T) {
	llm := &fakeLLM{response: `{"thought": "t", "action": {"type": "TELEPORT"}}`}
	r := NewLLMReasoner(zap.NewNop(), llm)

	_, err := r.ProposeAction(context.Background(), ProposalRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEPORT")
}

func TestLLMReasoner_RejectsMalformedJSON(t *testing.T) {
	llm := &fakeLLM{response: `I think we should click the button.`}
	r := NewLLMReasoner(zap.NewNop(), llm)

	_, err := r.ProposeAction(context.Background(), ProposalRequest{})
	require.Error(t, err)
}

func TestLLMReasoner_RejectsEmptyResponse(t *testing.T) {
	llm := &fakeLLM{response: "   \n"}
	r := NewLLMReasoner(zap.NewNop(), llm)

	_, err := r.ProposeAction(context.Background(), ProposalRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLLMReasoner_PropagatesClientFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("quota exceeded")}
	r := NewLLMReasoner(zap.NewNop(), llm)

	_, err := r.ProposeAction(context.Background(), ProposalRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestLLMReasoner_PromptCarriesMemoryAndBans(t *testing.T) {
	llm := &fakeLLM{response: `{"thought": "t", "action": {"type": "FINISH", "reason": "done"}}`}
	r := NewLLMReasoner(zap.NewNop(), llm)

	_, err := r.ProposeAction(context.Background(), ProposalRequest{
		Query:            "find prices",
		CurrentURL:       "https://shop.example/",
		MemoryContext:    "== MISSION MEMORY ==",
		BannedSignatures: []string{"CLICK|selector=#dead"},
		PageHTML:         "<html><body>hi</body></html>",
		Step:             4,
		MaxSteps:         25,
	})
	require.NoError(t, err)

	prompt := llm.lastReq.UserPrompt
	assert.Contains(t, prompt, "find prices")
	assert.Contains(t, prompt, "https://shop.example/")
	assert.Contains(t, prompt, "== MISSION MEMORY ==")
	assert.Contains(t, prompt, "CLICK|selector=#dead")
	assert.Contains(t, prompt, "<html>")
	assert.NotEmpty(t, llm.lastReq.SystemPrompt)
}

func TestLLMReasoner_TruncatesOversizedHTML(t *testing.T) {
	llm := &fakeLLM{response: `{"thought": "t", "action": {"type": "FINISH", "reason": "done"}}`}
	r := NewLLMReasoner(zap.NewNop(), llm)

	big := make([]byte, maxHTMLContext*2)
	for i := range big {
		big[i] = 'x'
	}
	_, err := r.ProposeAction(context.Background(), ProposalRequest{PageHTML: string(big)})
	require.NoError(t, err)
	assert.Less(t, len(llm.lastReq.UserPrompt), maxHTMLContext+2000)
}
