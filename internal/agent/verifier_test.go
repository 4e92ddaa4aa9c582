// internal/agent/verifier_test.go
package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func TestVerifier_ClickURLDelta(t *testing.T) {
	page := &mockPage{}
	page.On("URL").Return("https://example.com/results")
	v := NewVerifier(zap.NewNop(), "")

	result := v.Verify(context.Background(), page, Action{Type: ActionClick, Selector: "#go"}, "https://example.com/", 1)

	// A navigating click is a detected change, not a verified success.
	assert.False(t, result.Success)
	assert.True(t, result.ChangesDetected)
}

func TestVerifier_ClickWithoutNavigation(t *testing.T) {
	page := &mockPage{}
	page.On("URL").Return("https://example.com/")
	v := NewVerifier(zap.NewNop(), "")

	result := v.Verify(context.Background(), page, Action{Type: ActionClick, Selector: "#go"}, "https://example.com/", 1)

	assert.False(t, result.Success)
	assert.False(t, result.ChangesDetected)
}

func TestVerifier_PressNavigationIsSuccess(t *testing.T) {
	page := &mockPage{}
	page.On("URL").Return("https://example.com/search?q=x")
	v := NewVerifier(zap.NewNop(), "")

	result := v.Verify(context.Background(), page, Action{Type: ActionPress, Selector: "#q", Key: "Enter"}, "https://example.com/", 1)

	assert.True(t, result.Success)
	assert.True(t, result.ChangesDetected)
}

func TestVerifier_FillSubstringCheck(t *testing.T) {
	page := &mockPage{}
	loc := &mockLocator{}
	page.On("URL").Return("https://example.com/")
	page.On("Locator", "#q").Return(loc)
	v := NewVerifier(zap.NewNop(), "")

	loc.On("InputValue", mock.Anything).Return("hello golang world", nil).Once()
	result := v.Verify(context.Background(), page, Action{Type: ActionFill, Selector: "#q", Text: "golang"}, "https://example.com/", 1)
	assert.True(t, result.Success)

	loc.On("InputValue", mock.Anything).Return("something else", nil).Once()
	result = v.Verify(context.Background(), page, Action{Type: ActionFill, Selector: "#q", Text: "golang"}, "https://example.com/", 2)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Notes)
}

func TestVerifier_FillReadbackErrorIsANote(t *testing.T) {
	page := &mockPage{}
	loc := &mockLocator{}
	page.On("URL").Return("https://example.com/")
	page.On("Locator", "#gone").Return(loc)
	loc.On("InputValue", mock.Anything).Return("", errors.New("element detached")).Once()
	v := NewVerifier(zap.NewNop(), "")

	result := v.Verify(context.Background(), page, Action{Type: ActionFill, Selector: "#gone", Text: "x"}, "https://example.com/", 1)

	assert.False(t, result.Success)
	assert.Contains(t, result.Notes[0], "could not read back")
}

func TestVerifier_ScrollAlwaysPasses(t *testing.T) {
	page := &mockPage{}
	page.On("URL").Return("https://example.com/")
	v := NewVerifier(zap.NewNop(), "")

	result := v.Verify(context.Background(), page, Action{Type: ActionScroll, Direction: "down"}, "https://example.com/", 1)

	assert.True(t, result.Success)
	assert.True(t, result.ChangesDetected)
}

func TestVerifier_ScreenshotFailureNeverFailsVerification(t *testing.T) {
	dir := t.TempDir()
	page := &mockPage{}
	page.On("URL").Return("https://example.com/")
	page.On("Screenshot", mock.Anything, mock.Anything).Return(errors.New("capture failed")).Once()
	v := NewVerifier(zap.NewNop(), dir)

	result := v.Verify(context.Background(), page, Action{Type: ActionScroll}, "https://example.com/", 3)

	assert.True(t, result.Success)
	assert.Equal(t, "", result.ScreenshotPath)
}

func TestVerifier_ScreenshotPathIsZeroPadded(t *testing.T) {
	dir := t.TempDir()
	page := &mockPage{}
	page.On("Screenshot", mock.Anything, filepath.Join(dir, "step_0007.png")).Return(nil).Once()
	v := NewVerifier(zap.NewNop(), dir)

	result := v.Verify(context.Background(), page, Action{Type: ActionScroll}, "https://example.com/", 7)

	assert.Equal(t, filepath.Join(dir, "step_0007.png"), result.ScreenshotPath)
	page.AssertExpectations(t)
}
