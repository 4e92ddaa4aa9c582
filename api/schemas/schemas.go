package schemas

import "time"

// JobState enumerates the lifecycle states of a search job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobWaiting   JobState = "waiting_for_input"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// SearchRequest is the inbound payload that starts a mission. TopK is the
// number of results the mission may stop early on; MaxSteps caps the loop.
type SearchRequest struct {
	Query    string `json:"query"`
	URL      string `json:"url"`
	TopK     int    `json:"top_k,omitempty"`
	MaxSteps int    `json:"max_steps,omitempty"`
}

// ExtractedItem is a single result harvested from the page. URL is always
// absolute by the time it lands here.
type ExtractedItem struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ResultPayload is the terminal artifact of a mission.
type ResultPayload struct {
	JobID       string          `json:"job_id"`
	Results     []ExtractedItem `json:"results"`
	Screenshots []string        `json:"screenshots"`
	Steps       int             `json:"steps"`
	StopReason  string          `json:"stop_reason"`
}

// StatusEvent is one observability record pushed through the status sink and
// replayed over the SSE stream.
type StatusEvent struct {
	JobID     string                 `json:"job_id"`
	Event     string                 `json:"event"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// UserInputRequest describes what the mission is waiting on from a human
// operator. Sensitive requests (passwords, OTP codes) must never be echoed
// into logs or status events.
type UserInputRequest struct {
	JobID     string    `json:"job_id"`
	InputType string    `json:"input_type"`
	Prompt    string    `json:"prompt"`
	Sensitive bool      `json:"sensitive"`
	CreatedAt time.Time `json:"created_at"`
}

// UserInputResponse carries the operator's answer back to a waiting mission.
type UserInputResponse struct {
	JobID string `json:"job_id"`
	Value string `json:"value"`
}

// JobRecord is the stored view of a job as seen by the repository layer.
type JobRecord struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	URL       string         `json:"url"`
	TopK      int            `json:"top_k"`
	MaxSteps  int            `json:"max_steps"`
	State     JobState       `json:"state"`
	Result    *ResultPayload `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ElementCandidate is one fuzzy-matched DOM element returned by the live page
// search. Selectors are ordered from most to least specific; Priority ranks
// candidates against each other.
type ElementCandidate struct {
	Tag                string   `json:"tag"`
	Text               string   `json:"text"`
	MatchScore         int      `json:"match_score"`
	Visible            bool     `json:"visible"`
	Interactive        bool     `json:"interactive"`
	Clickable          bool     `json:"clickable"`
	Priority           int      `json:"priority"`
	Selectors          []string `json:"selectors"`
	InteractionMethods []string `json:"interaction_methods"`
}

// CaptchaOutcome reports what the external solver did. Err is advisory; a
// failed solve never aborts a mission.
type CaptchaOutcome struct {
	Found      bool    `json:"found"`
	Solved     bool    `json:"solved"`
	Type       string  `json:"type,omitempty"`
	Service    string  `json:"service,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Err        string  `json:"error,omitempty"`
}

// ModelTier selects which configured model a generation request is routed to.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationRequest is a provider-agnostic LLM call.
type GenerationRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	UserPrompt   string    `json:"user_prompt"`
	Tier         ModelTier `json:"tier,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float32   `json:"temperature,omitempty"`
}
