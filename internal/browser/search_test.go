// internal/browser/search_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawResult mimics what the CDP bridge hands back from the in-page script:
// maps and float64 numbers.
func rawResult(tag string, visible, interactive, clickable bool, score float64, selectors ...string) map[string]interface{} {
	sels := make([]interface{}, len(selectors))
	for i, s := range selectors {
		sels[i] = s
	}
	return map[string]interface{}{
		"tagName":       tag,
		"matches":       []interface{}{map[string]interface{}{"type": "textContent", "score": score}},
		"selectors":     sels,
		"isVisible":     visible,
		"isInteractive": interactive,
		"isClickable":   clickable,
		"textContent":   "Sign in",
	}
}

func TestDecodeCandidates_RanksByPriority(t *testing.T) {
	raw := []interface{}{
		rawResult("div", false, false, false, 100, "div"),
		rawResult("button", true, true, true, 100, "#login"),
	}

	candidates, err := decodeCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// The visible interactive button outranks the hidden div at equal score.
	assert.Equal(t, "button", candidates[0].Tag)
	assert.Equal(t, []string{"#login"}, candidates[0].Selectors)
	assert.Greater(t, candidates[0].Priority, candidates[1].Priority)
}

func TestDecodeCandidates_CapsSelectorsAtFive(t *testing.T) {
	raw := []interface{}{
		rawResult("a", true, true, true, 80,
			"#id", ".cls", `[data-x="1"]`, `[name="q"]`, `text="Sign in"`, "a"),
	}

	candidates, err := decodeCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Len(t, candidates[0].Selectors, 5)
	assert.Equal(t, "#id", candidates[0].Selectors[0])
}

func TestDecodeCandidates_InteractionMethods(t *testing.T) {
	raw := []interface{}{
		rawResult("input", true, true, true, 90, "#q"),
		rawResult("select", true, true, true, 90, "#country"),
		rawResult("span", true, false, false, 90, "span"),
	}

	candidates, err := decodeCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	byTag := map[string][]string{}
	for _, c := range candidates {
		byTag[c.Tag] = c.InteractionMethods
	}
	assert.Equal(t, []string{"click", "fill", "press"}, byTag["input"])
	assert.Equal(t, []string{"click", "selectOption"}, byTag["select"])
	assert.Empty(t, byTag["span"])
}

func TestDecodeCandidates_SkipsUnusableEntries(t *testing.T) {
	noMatches := rawResult("div", true, false, false, 0, "div")
	noMatches["matches"] = []interface{}{}
	noSelectors := rawResult("div", true, false, false, 50)

	candidates, err := decodeCandidates([]interface{}{noMatches, noSelectors})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDecodeCandidates_PrefersMaxScoreField(t *testing.T) {
	raw := rawResult("button", true, true, true, 0, "#x")
	raw["matches"] = []interface{}{
		map[string]interface{}{"type": "attribute", "maxScore": float64(100)},
		map[string]interface{}{"type": "textContent", "score": float64(60)},
	}

	candidates, err := decodeCandidates([]interface{}{raw})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 100, candidates[0].MatchScore)
}

func TestDecodeCandidates_RejectsNonArrayPayload(t *testing.T) {
	_, err := decodeCandidates(map[string]interface{}{"oops": true})
	assert.Error(t, err)
}
