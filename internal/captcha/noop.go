// internal/captcha/noop.go
package captcha

import (
	"context"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Noop is the solver used when no service is configured. It reports nothing
// found so missions proceed normally.
type Noop struct{}

var _ schemas.CaptchaSolver = (*Noop)(nil)

func (*Noop) SolveIfPresent(context.Context, schemas.Page, string) schemas.CaptchaOutcome {
	return schemas.CaptchaOutcome{Found: false}
}
