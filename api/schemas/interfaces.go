package schemas

import (
	"context"
	"time"
)

// -- Browser Interfaces --

// Page is the capability surface the agent core holds on a live browser tab.
// One page is exclusively owned by one mission for its whole lifetime; no
// method is safe for concurrent use across missions.
type Page interface {
	// Goto navigates to a URL and waits for the load state.
	Goto(ctx context.Context, url string) error
	// URL returns the current address without a round trip.
	URL() string
	// Content returns the serialized HTML of the current document.
	Content(ctx context.Context) (string, error)
	// Evaluate runs a script in the page and returns its JSON-able result.
	Evaluate(ctx context.Context, script string) (interface{}, error)
	// Locator builds a lazy handle for the first stage of an element lookup.
	Locator(selector string) Locator
	// PressKey sends a key chord to the focused element (or the body).
	PressKey(ctx context.Context, key string) error
	// Screenshot writes a full-viewport PNG to path.
	Screenshot(ctx context.Context, path string) error
	// FindElementsByText performs the fuzzy live-DOM search and returns
	// candidates ranked by priority, best first.
	FindElementsByText(ctx context.Context, text string) ([]ElementCandidate, error)
	// Close releases the tab.
	Close(ctx context.Context) error
}

// Locator is a deferred element reference. Interaction methods resolve the
// selector at call time against the live DOM.
type Locator interface {
	Click(ctx context.Context, timeout time.Duration) error
	Fill(ctx context.Context, text string, timeout time.Duration) error
	Press(ctx context.Context, key string, timeout time.Duration) error
	Count(ctx context.Context) (int, error)
	IsVisible(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	InputValue(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, error)
	First() Locator
}

// -- External Collaborators --

// LLMClient abstracts a single text-generation provider.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req GenerationRequest) (string, error)
}

// CaptchaSolver is the narrow contract with the captcha subsystem. The
// returned outcome is advisory; implementations must not panic and should
// fold their own failures into Outcome.Err.
type CaptchaSolver interface {
	SolveIfPresent(ctx context.Context, page Page, url string) CaptchaOutcome
}

// StatusSink receives fire-and-forget mission progress events. Push must
// never block mission control flow and must swallow its own errors.
type StatusSink interface {
	Push(jobID, event string, details map[string]interface{})
}
