// internal/captcha/captcha.go
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

const serviceName = "capsolver"

// taskTypes maps detected challenge kinds to the solver API's task types.
var taskTypes = map[string]string{
	"turnstile":    "AntiTurnstileTaskProxyless",
	"recaptcha_v2": "ReCaptchaV2TaskProxyless",
	"recaptcha_v3": "ReCaptchaV3TaskProxyless",
	"hcaptcha":     "HCaptchaTaskProxyless",
}

// Solver detects challenges on the live page and delegates token generation
// to an external solving service. All failures fold into the outcome; this
// collaborator never aborts a mission.
type Solver struct {
	logger       *zap.Logger
	endpoint     string
	apiKey       string
	httpClient   *http.Client
	solveTimeout time.Duration
	pollInterval time.Duration
}

var _ schemas.CaptchaSolver = (*Solver)(nil)

// New builds the configured solver. A disabled config or missing API key
// yields the noop solver so callers never branch on nil.
func New(cfg config.CaptchaConfig, logger *zap.Logger) schemas.CaptchaSolver {
	if !cfg.Enabled || cfg.APIKey == "" {
		return &Noop{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.capsolver.com"
	}
	solveTimeout := cfg.SolveTimeout
	if solveTimeout <= 0 {
		solveTimeout = 180 * time.Second
	}
	return &Solver{
		logger:       logger.Named("captcha"),
		endpoint:     endpoint,
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		solveTimeout: solveTimeout,
		pollInterval: 3 * time.Second,
	}
}

// detection is what the in-page scan reports back.
type detection struct {
	Type       string  `json:"type"`
	Sitekey    string  `json:"sitekey"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
}

// SolveIfPresent runs the detect, solve, inject pipeline. A page with no
// challenge returns Found=false; every error path returns an outcome with
// Err set instead of propagating.
func (s *Solver) SolveIfPresent(ctx context.Context, page schemas.Page, pageURL string) schemas.CaptchaOutcome {
	det, err := s.detect(ctx, page)
	if err != nil {
		return schemas.CaptchaOutcome{Err: fmt.Sprintf("detection failed: %v", err)}
	}
	if det == nil || det.Type == "" {
		return schemas.CaptchaOutcome{Found: false}
	}

	outcome := schemas.CaptchaOutcome{
		Found:      true,
		Type:       det.Type,
		Service:    serviceName,
		Confidence: det.Confidence,
	}
	s.logger.Info("Captcha detected",
		zap.String("type", det.Type),
		zap.Float64("confidence", det.Confidence),
		zap.String("url", pageURL))

	token, err := s.solve(ctx, det, pageURL)
	if err != nil {
		outcome.Err = fmt.Sprintf("solving failed: %v", err)
		return outcome
	}

	if err := s.inject(ctx, page, det.Type, token); err != nil {
		outcome.Err = fmt.Sprintf("token injection failed: %v", err)
		return outcome
	}

	outcome.Solved = true
	s.logger.Info("Captcha solved", zap.String("type", det.Type))
	return outcome
}

// detect runs the in-page scan and decodes its best match.
func (s *Solver) detect(ctx context.Context, page schemas.Page) (*detection, error) {
	raw, err := page.Evaluate(ctx, detectJS)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var det detection
	if err := json.Unmarshal(data, &det); err != nil {
		return nil, err
	}
	return &det, nil
}

// -- Solver Service API --

type createTaskRequest struct {
	ClientKey string  `json:"clientKey"`
	Task      taskDef `json:"task"`
}

type taskDef struct {
	Type       string  `json:"type"`
	WebsiteURL string  `json:"websiteURL"`
	WebsiteKey string  `json:"websiteKey"`
	PageAction string  `json:"pageAction,omitempty"`
	MinScore   float64 `json:"minScore,omitempty"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Token              string `json:"token"`
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// solve submits a task and polls until the service produces a token or the
// solve window closes.
func (s *Solver) solve(ctx context.Context, det *detection, pageURL string) (string, error) {
	taskType, ok := taskTypes[det.Type]
	if !ok {
		return "", fmt.Errorf("unsupported captcha type %q", det.Type)
	}

	task := taskDef{
		Type:       taskType,
		WebsiteURL: pageURL,
		WebsiteKey: det.Sitekey,
	}
	if det.Type == "recaptcha_v3" {
		action := det.Action
		if action == "" {
			action = "submit"
		}
		task.PageAction = action
		task.MinScore = 0.3
	}

	var created createTaskResponse
	if err := s.post(ctx, "/createTask", createTaskRequest{ClientKey: s.apiKey, Task: task}, &created); err != nil {
		return "", err
	}
	if created.ErrorID != 0 {
		return "", fmt.Errorf("service rejected task: %s", created.ErrorDescription)
	}

	deadline := time.Now().Add(s.solveTimeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var result taskResultResponse
		if err := s.post(ctx, "/getTaskResult", taskResultRequest{ClientKey: s.apiKey, TaskID: created.TaskID}, &result); err != nil {
			return "", err
		}
		switch result.Status {
		case "ready":
			token := result.Solution.Token
			if token == "" {
				token = result.Solution.GRecaptchaResponse
			}
			if token == "" {
				return "", fmt.Errorf("service reported ready with no token")
			}
			return token, nil
		case "failed":
			return "", fmt.Errorf("service failed the task: %s", result.ErrorDescription)
		}
	}
	return "", fmt.Errorf("solve timed out after %s", s.solveTimeout)
}

func (s *Solver) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solver service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// inject writes the token into the response fields the page's verification
// script reads, then fires the callbacks frameworks listen on.
func (s *Solver) inject(ctx context.Context, page schemas.Page, captchaType, token string) error {
	script := fmt.Sprintf(injectJS, jsString(token), jsString(captchaType))
	_, err := page.Evaluate(ctx, script)
	return err
}

// jsString quotes a value for safe embedding in an injected script.
func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// detectJS scans for the challenge widgets the solver supports, most
// specific first, and reports the best match or null.
const detectJS = `(() => {
	if (!document || !document.documentElement) return null;

	const sitekeyOf = (el) => el.getAttribute('data-sitekey') || el.getAttribute('data-site-key') || '';

	const turnstile = document.querySelector('.cf-turnstile, [class*="cf-turnstile"], iframe[src*="challenges.cloudflare.com"]');
	if (turnstile) {
		let sitekey = sitekeyOf(turnstile);
		if (!sitekey && turnstile.tagName === 'IFRAME') {
			const m = (turnstile.src || '').match(/sitekey=([^&]+)/);
			if (m) sitekey = m[1];
		}
		return {type: 'turnstile', sitekey: sitekey, confidence: 90};
	}

	const recaptcha = document.querySelector('.g-recaptcha[data-sitekey], [data-sitekey][class*="recaptcha"]');
	if (recaptcha) {
		const size = recaptcha.getAttribute('data-size') || '';
		const type = size === 'invisible' ? 'recaptcha_v3' : 'recaptcha_v2';
		return {type: type, sitekey: sitekeyOf(recaptcha), confidence: 85,
			action: recaptcha.getAttribute('data-action') || ''};
	}
	const recaptchaFrame = document.querySelector('iframe[src*="google.com/recaptcha"]');
	if (recaptchaFrame) {
		const m = (recaptchaFrame.src || '').match(/[?&]k=([^&]+)/);
		return {type: 'recaptcha_v2', sitekey: m ? m[1] : '', confidence: 70};
	}

	const hcaptcha = document.querySelector('.h-captcha[data-sitekey], iframe[src*="hcaptcha.com"]');
	if (hcaptcha) {
		let sitekey = sitekeyOf(hcaptcha);
		if (!sitekey && hcaptcha.tagName === 'IFRAME') {
			const m = (hcaptcha.src || '').match(/sitekey=([^&]+)/);
			if (m) sitekey = m[1];
		}
		return {type: 'hcaptcha', sitekey: sitekey, confidence: 85};
	}

	return null;
})()`

// injectJS fills every known response field with the token and triggers the
// registered callback when one exists. Args: token, type (both pre-quoted).
const injectJS = `(() => {
	const token = %s;
	const kind = %s;

	const fields = [
		'textarea[name="g-recaptcha-response"]',
		'textarea[name="h-captcha-response"]',
		'input[name="cf-turnstile-response"]',
		'input[name="g-recaptcha-response"]'
	];
	let filled = 0;
	for (const sel of fields) {
		for (const el of document.querySelectorAll(sel)) {
			el.value = token;
			el.innerHTML = token;
			filled++;
		}
	}

	try {
		const widget = document.querySelector('[data-callback]');
		if (widget) {
			const cb = window[widget.getAttribute('data-callback')];
			if (typeof cb === 'function') cb(token);
		}
	} catch (e) {}

	return {filled: filled, kind: kind};
})()`
