// internal/agent/fallback_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackAction_DominantCategoryWins(t *testing.T) {
	mem := NewMissionState("job-1", "query", 25, 5)
	// Click failures bucket as element-not-found.
	mem.BanAction("CLICK|selector=#a")
	mem.BanAction("CLICK|selector=#b")
	mem.BanAction("FILL|selector=#c|text=x")

	action := FallbackAction(mem)
	assert.Equal(t, ActionScroll, action.Type)
	assert.Equal(t, "down", action.Direction)
	assert.Contains(t, action.Thought, "element lookups failed")
}

func TestFallbackAction_UserInputTimeoutCategory(t *testing.T) {
	mem := NewMissionState("job-1", "query", 25, 5)
	mem.BanAction("REQUEST_USER_INPUT")

	action := FallbackAction(mem)
	assert.Equal(t, ActionScroll, action.Type)
	assert.Contains(t, action.Thought, "user input")
}

func TestFallbackAction_StepParityWithoutFailures(t *testing.T) {
	mem := NewMissionState("job-1", "query", 25, 5)

	mem.Step = 3
	assert.Equal(t, "down", FallbackAction(mem).Direction)
	mem.Step = 4
	assert.Equal(t, "up", FallbackAction(mem).Direction)
}

func TestFallbackAction_IsDeterministic(t *testing.T) {
	mem := NewMissionState("job-1", "query", 25, 5)
	mem.BanAction("CLICK|selector=#a")
	mem.Step = 7

	first := FallbackAction(mem)
	second := FallbackAction(mem)
	assert.Equal(t, first, second)
}
