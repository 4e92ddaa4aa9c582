// internal/captcha/captcha_test.go
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// fakePage stubs the one page capability the solver touches.
type fakePage struct {
	schemas.Page
	evaluate func(script string) (interface{}, error)
	scripts  []string
}

func (f *fakePage) Evaluate(_ context.Context, script string) (interface{}, error) {
	f.scripts = append(f.scripts, script)
	return f.evaluate(script)
}

func detectionResult(kind, sitekey string) map[string]interface{} {
	return map[string]interface{}{
		"type": kind, "sitekey": sitekey, "confidence": float64(90),
	}
}

func newTestSolver(t *testing.T, handler http.HandlerFunc) *Solver {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s := New(config.CaptchaConfig{
		Enabled:      true,
		APIKey:       "test-key",
		Endpoint:     server.URL,
		SolveTimeout: 5 * time.Second,
	}, zap.NewNop()).(*Solver)
	s.pollInterval = 10 * time.Millisecond
	return s
}

func TestNew_DisabledYieldsNoop(t *testing.T) {
	s := New(config.CaptchaConfig{Enabled: false, APIKey: "k"}, zap.NewNop())
	assert.IsType(t, &Noop{}, s)

	s = New(config.CaptchaConfig{Enabled: true, APIKey: ""}, zap.NewNop())
	assert.IsType(t, &Noop{}, s)

	outcome := s.SolveIfPresent(context.Background(), nil, "https://example.com/")
	assert.False(t, outcome.Found)
	assert.Empty(t, outcome.Err)
}

func TestSolveIfPresent_NoChallenge(t *testing.T) {
	s := newTestSolver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected when nothing is detected")
	})
	page := &fakePage{evaluate: func(string) (interface{}, error) { return nil, nil }}

	outcome := s.SolveIfPresent(context.Background(), page, "https://example.com/")

	assert.False(t, outcome.Found)
	assert.False(t, outcome.Solved)
	assert.Empty(t, outcome.Err)
}

func TestSolveIfPresent_SolvesAndInjects(t *testing.T) {
	var polls int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/createTask":
			var req createTaskRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-key", req.ClientKey)
			assert.Equal(t, "AntiTurnstileTaskProxyless", req.Task.Type)
			assert.Equal(t, "0xSITEKEY", req.Task.WebsiteKey)
			json.NewEncoder(w).Encode(createTaskResponse{TaskID: "task-1"})
		case "/getTaskResult":
			if atomic.AddInt32(&polls, 1) == 1 {
				json.NewEncoder(w).Encode(taskResultResponse{Status: "processing"})
				return
			}
			resp := taskResultResponse{Status: "ready"}
			resp.Solution.Token = "tok-abc"
			json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}

	injected := false
	page := &fakePage{}
	page.evaluate = func(script string) (interface{}, error) {
		if strings.Contains(script, "tok-abc") {
			injected = true
			return map[string]interface{}{"filled": float64(1)}, nil
		}
		return detectionResult("turnstile", "0xSITEKEY"), nil
	}

	s := newTestSolver(t, handler)
	outcome := s.SolveIfPresent(context.Background(), page, "https://example.com/login")

	assert.True(t, outcome.Found)
	assert.True(t, outcome.Solved)
	assert.Equal(t, "turnstile", outcome.Type)
	assert.Equal(t, serviceName, outcome.Service)
	assert.Empty(t, outcome.Err)
	assert.True(t, injected, "token must be injected into the page")
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(2))
}

func TestSolveIfPresent_ServiceFailureIsReported(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/createTask":
			json.NewEncoder(w).Encode(createTaskResponse{TaskID: "task-1"})
		case "/getTaskResult":
			json.NewEncoder(w).Encode(taskResultResponse{Status: "failed", ErrorDescription: "unsolvable"})
		}
	}
	page := &fakePage{evaluate: func(string) (interface{}, error) {
		return detectionResult("recaptcha_v2", "6LeKEY"), nil
	}}

	s := newTestSolver(t, handler)
	outcome := s.SolveIfPresent(context.Background(), page, "https://example.com/")

	assert.True(t, outcome.Found)
	assert.False(t, outcome.Solved)
	assert.Contains(t, outcome.Err, "unsolvable")
}

func TestSolveIfPresent_UnsupportedTypeIsReported(t *testing.T) {
	s := newTestSolver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unsupported types never reach the service")
	})
	page := &fakePage{evaluate: func(string) (interface{}, error) {
		return detectionResult("geetest", "gt-key"), nil
	}}

	outcome := s.SolveIfPresent(context.Background(), page, "https://example.com/")

	assert.True(t, outcome.Found)
	assert.False(t, outcome.Solved)
	assert.Contains(t, outcome.Err, "unsupported captcha type")
}

func TestSolveIfPresent_DetectionErrorNeverPropagates(t *testing.T) {
	s := newTestSolver(t, func(w http.ResponseWriter, r *http.Request) {})
	page := &fakePage{evaluate: func(string) (interface{}, error) {
		return nil, errors.New("execution context was destroyed")
	}}

	outcome := s.SolveIfPresent(context.Background(), page, "https://example.com/")

	assert.False(t, outcome.Found)
	assert.False(t, outcome.Solved)
	assert.Contains(t, outcome.Err, "detection failed")
}

func TestSolveIfPresent_RejectedTask(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createTaskResponse{ErrorID: 1, ErrorDescription: "ERROR_KEY_DENIED"})
	}
	page := &fakePage{evaluate: func(string) (interface{}, error) {
		return detectionResult("hcaptcha", "hc-key"), nil
	}}

	s := newTestSolver(t, handler)
	outcome := s.SolveIfPresent(context.Background(), page, "https://example.com/")

	assert.True(t, outcome.Found)
	assert.False(t, outcome.Solved)
	assert.Contains(t, outcome.Err, "ERROR_KEY_DENIED")
}
