// internal/agent/mocks_test.go
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// -- Page / Locator Mocks --

type mockLocator struct {
	mock.Mock
}

func (m *mockLocator) Click(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *mockLocator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	return m.Called(ctx, text, timeout).Error(0)
}

func (m *mockLocator) Press(ctx context.Context, key string, timeout time.Duration) error {
	return m.Called(ctx, key, timeout).Error(0)
}

func (m *mockLocator) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockLocator) IsVisible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocator) IsEnabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocator) InputValue(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockLocator) GetAttribute(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *mockLocator) First() schemas.Locator { return m }

type mockPage struct {
	mock.Mock
}

func (m *mockPage) Goto(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *mockPage) URL() string {
	return m.Called().String(0)
}

func (m *mockPage) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockPage) Evaluate(ctx context.Context, script string) (interface{}, error) {
	args := m.Called(ctx, script)
	return args.Get(0), args.Error(1)
}

func (m *mockPage) Locator(selector string) schemas.Locator {
	return m.Called(selector).Get(0).(schemas.Locator)
}

func (m *mockPage) PressKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockPage) Screenshot(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *mockPage) FindElementsByText(ctx context.Context, text string) ([]schemas.ElementCandidate, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]schemas.ElementCandidate), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Collaborator Mocks --

type mockReasoner struct {
	mock.Mock
}

func (m *mockReasoner) ProposeAction(ctx context.Context, req ProposalRequest) (*Proposal, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*Proposal), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockGate struct {
	mock.Mock
}

func (m *mockGate) Request(jobID string, req schemas.UserInputRequest) error {
	return m.Called(jobID, req).Error(0)
}

func (m *mockGate) Await(ctx context.Context, jobID string, timeout time.Duration) (string, error) {
	args := m.Called(ctx, jobID, timeout)
	return args.String(0), args.Error(1)
}

func (m *mockGate) Clear(jobID string) {
	m.Called(jobID)
}

type mockCaptcha struct {
	mock.Mock
}

func (m *mockCaptcha) SolveIfPresent(ctx context.Context, page schemas.Page, url string) schemas.CaptchaOutcome {
	return m.Called(ctx, page, url).Get(0).(schemas.CaptchaOutcome)
}

// recordingSink collects pushed events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Push(jobID, event string, details map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}
