// internal/agent/verifier.go
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Verifier inspects the page after an action to decide whether it did
// anything. Verification is deliberately weak: a click that does not
// navigate is not a failure, only an unconfirmed success.
type Verifier struct {
	logger        *zap.Logger
	screenshotDir string
	readTimeout   time.Duration
}

// NewVerifier creates a verifier writing audit screenshots under dir.
func NewVerifier(logger *zap.Logger, screenshotDir string) *Verifier {
	return &Verifier{
		logger:        logger.Named("verifier"),
		screenshotDir: screenshotDir,
		readTimeout:   5 * time.Second,
	}
}

// Verify classifies the effect of an executed action. A screenshot is always
// attempted as a side effect; screenshot failure never fails verification.
func (v *Verifier) Verify(ctx context.Context, page schemas.Page, action Action, priorURL string, step int) *VerificationResult {
	result := &VerificationResult{}

	switch action.Type {
	case ActionClick:
		// Clicking may legitimately not navigate.
		if page.URL() != priorURL {
			result.ChangesDetected = true
			result.Notes = append(result.Notes, fmt.Sprintf("url changed: %s -> %s", priorURL, page.URL()))
		} else {
			result.Notes = append(result.Notes, "click produced no url change")
		}

	case ActionPress:
		if page.URL() != priorURL {
			result.Success = true
			result.ChangesDetected = true
			result.Notes = append(result.Notes, fmt.Sprintf("url changed: %s -> %s", priorURL, page.URL()))
		} else {
			result.Notes = append(result.Notes, "key press produced no url change")
		}

	case ActionFill:
		result.Success, result.Notes = v.verifyFill(ctx, page, action)
		result.ChangesDetected = result.Success

	case ActionScroll:
		// Scroll verification is a no-op pass; the executor already measured
		// the actual delta.
		result.Success = true
		result.ChangesDetected = true

	default:
		// Extract, finish and the delegated actions are self-describing.
		result.Notes = append(result.Notes, fmt.Sprintf("no verification for %s", action.Type))
	}

	result.ScreenshotPath = v.captureScreenshot(ctx, page, step)
	return result
}

// verifyFill reads back the target field and checks the typed text landed.
func (v *Verifier) verifyFill(ctx context.Context, page schemas.Page, action Action) (bool, []string) {
	readCtx, cancel := context.WithTimeout(ctx, v.readTimeout)
	defer cancel()

	value, err := page.Locator(action.Selector).First().InputValue(readCtx)
	if err != nil {
		return false, []string{fmt.Sprintf("could not read back field %s: %v", action.Selector, err)}
	}
	if action.Text != "" && strings.Contains(value, action.Text) {
		return true, []string{fmt.Sprintf("field %s contains the typed text", action.Selector)}
	}
	return false, []string{fmt.Sprintf("field %s does not contain the typed text (len %d)", action.Selector, len(value))}
}

// captureScreenshot writes the per-step audit PNG and returns its path, or
// "" when capture failed. Failures are logged and swallowed.
func (v *Verifier) captureScreenshot(ctx context.Context, page schemas.Page, step int) string {
	if v.screenshotDir == "" {
		return ""
	}
	if err := os.MkdirAll(v.screenshotDir, 0o755); err != nil {
		v.logger.Warn("Could not create screenshot directory", zap.Error(err))
		return ""
	}
	path := filepath.Join(v.screenshotDir, fmt.Sprintf("step_%04d.png", step))

	shotCtx, cancel := context.WithTimeout(ctx, v.readTimeout)
	defer cancel()
	if err := page.Screenshot(shotCtx, path); err != nil {
		v.logger.Warn("Screenshot capture failed", zap.Int("step", step), zap.Error(err))
		return ""
	}
	return path
}
