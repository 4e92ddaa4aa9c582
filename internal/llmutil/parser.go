// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regexes use \x60 for backticks because Go raw strings cannot contain them.

	// jsonObjectRegex extracts a JSON object wrapped in a markdown fence.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array wrapped in a markdown fence.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse parses an LLM response string into a target Go type.
// Models routinely wrap their JSON in markdown fences or conversational
// preamble; both are stripped before unmarshaling.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, TruncateString(payload, 500))
	}
	return &result, nil
}

// ExtractJSON returns the best-effort JSON substring of a model response.
// The input is returned unchanged when no fence or bracket pair is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	hasObject := strings.Contains(response, "{")
	hasArray := strings.Contains(response, "[")

	// Markdown fences are the most common wrapping.
	if strings.HasPrefix(response, "```") {
		var matches []string
		if hasObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && hasArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
	}

	// Conversational text around a bare structure.
	if !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		if hasObject {
			if fb, lb := strings.Index(response, "{"), strings.LastIndex(response, "}"); fb != -1 && lb > fb {
				return response[fb : lb+1]
			}
		}
		if hasArray {
			if fb, lb := strings.Index(response, "["), strings.LastIndex(response, "]"); fb != -1 && lb > fb {
				return response[fb : lb+1]
			}
		}
	}

	return response
}

// TruncateString truncates a string to a maximum length for error reporting.
// Byte-based; rune boundaries do not matter for log output.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
