package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// -- Test Setup Helper --

// setupRouter creates a standard LLMRouter instance for testing, along with its mocks and a log observer.
func setupRouter(t *testing.T) (*LLMRouter, *MockLLMClient, *MockLLMClient, *observer.ObservedLogs) {
	t.Helper()
	loggerCore, observedLogs := observer.New(zap.DebugLevel)
	logger := zap.New(loggerCore)

	fastClient := &MockLLMClient{Name: "FastClient"}
	powerfulClient := &MockLLMClient{Name: "PowerfulClient"}

	router, err := NewLLMRouter(logger, fastClient, powerfulClient)
	require.NoError(t, err, "NewLLMRouter should initialize successfully")

	return router, fastClient, powerfulClient, observedLogs
}

// -- Test Cases: Initialization (NewLLMRouter) --

func TestNewLLMRouter_Success(t *testing.T) {
	router, fastClient, powerfulClient, _ := setupRouter(t)

	require.NotNil(t, router)
	assert.Equal(t, fastClient, router.clients[schemas.TierFast])
	assert.Equal(t, powerfulClient, router.clients[schemas.TierPowerful])
}

func TestNewLLMRouter_Failure_MissingClients(t *testing.T) {
	logger := setupTestLogger(t)
	validClient := new(MockLLMClient)
	expectedError := "both fast and powerful tier clients must be provided"

	tests := []struct {
		name     string
		fast     schemas.LLMClient
		powerful schemas.LLMClient
	}{
		{"Missing fast client", nil, validClient},
		{"Missing powerful client", validClient, nil},
		{"Missing both clients", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := NewLLMRouter(logger, tt.fast, tt.powerful)
			assert.Error(t, err)
			assert.Nil(t, router)
			assert.Contains(t, err.Error(), expectedError)
		})
	}
}

// -- Test Cases: Routing (GenerateResponse) --

func TestLLMRouter_RoutesByTier(t *testing.T) {
	router, fastClient, powerfulClient, _ := setupRouter(t)
	ctx := context.Background()

	fastReq := schemas.GenerationRequest{UserPrompt: "quick", Tier: schemas.TierFast}
	powerfulReq := schemas.GenerationRequest{UserPrompt: "deep", Tier: schemas.TierPowerful}

	fastClient.On("GenerateResponse", ctx, fastReq).Return("fast answer", nil).Once()
	powerfulClient.On("GenerateResponse", ctx, powerfulReq).Return("powerful answer", nil).Once()

	resp, err := router.GenerateResponse(ctx, fastReq)
	require.NoError(t, err)
	assert.Equal(t, "fast answer", resp)

	resp, err = router.GenerateResponse(ctx, powerfulReq)
	require.NoError(t, err)
	assert.Equal(t, "powerful answer", resp)

	fastClient.AssertExpectations(t)
	powerfulClient.AssertExpectations(t)
}

func TestLLMRouter_DefaultsToFastTier(t *testing.T) {
	router, fastClient, powerfulClient, _ := setupRouter(t)
	ctx := context.Background()

	req := schemas.GenerationRequest{UserPrompt: "no tier set"}
	fastClient.On("GenerateResponse", ctx, req).Return("fast answer", nil).Once()

	resp, err := router.GenerateResponse(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "fast answer", resp)

	fastClient.AssertExpectations(t)
	powerfulClient.AssertNotCalled(t, "GenerateResponse", mock.Anything, mock.Anything)
}

func TestLLMRouter_PropagatesClientError(t *testing.T) {
	router, fastClient, _, _ := setupRouter(t)
	ctx := context.Background()

	req := schemas.GenerationRequest{UserPrompt: "boom", Tier: schemas.TierFast}
	fastClient.On("GenerateResponse", ctx, req).Return("", errors.New("provider outage")).Once()

	resp, err := router.GenerateResponse(ctx, req)
	assert.Error(t, err)
	assert.Empty(t, resp)
	assert.Contains(t, err.Error(), "provider outage")
}

func TestLLMRouter_UnknownTier(t *testing.T) {
	router, _, _, _ := setupRouter(t)

	_, err := router.GenerateResponse(context.Background(), schemas.GenerationRequest{
		UserPrompt: "x", Tier: schemas.ModelTier("quantum"),
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM client configured for tier")
}
