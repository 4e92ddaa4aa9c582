// internal/jobs/gate_test.go
package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newGate() *InputGate {
	return NewInputGate(zap.NewNop())
}

func TestInputGate_RequestRespondAwait(t *testing.T) {
	gate := newGate()
	req := schemas.UserInputRequest{
		JobID:     "job-1",
		InputType: "otp_code",
		Prompt:    "Enter the code sent to your phone",
		Sensitive: true,
	}
	require.NoError(t, gate.Request("job-1", req))

	pending, ok := gate.Pending("job-1")
	require.True(t, ok)
	assert.Equal(t, "otp_code", pending.InputType)

	// Respond before Await; the buffered channel holds the value.
	require.NoError(t, gate.Respond("job-1", "123456"))

	value, err := gate.Await(context.Background(), "job-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "123456", value)

	// Consumption clears the pending entry.
	_, ok = gate.Pending("job-1")
	assert.False(t, ok)
}

func TestInputGate_AwaitBlocksUntilResponse(t *testing.T) {
	gate := newGate()
	require.NoError(t, gate.Request("job-1", schemas.UserInputRequest{JobID: "job-1", InputType: "text"}))

	done := make(chan string, 1)
	go func() {
		value, err := gate.Await(context.Background(), "job-1", 5*time.Second)
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- value
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, gate.Respond("job-1", "hello"))

	select {
	case got := <-done:
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatal("Await never returned")
	}
}

func TestInputGate_ExactlyOnceDelivery(t *testing.T) {
	gate := newGate()
	require.NoError(t, gate.Request("job-1", schemas.UserInputRequest{JobID: "job-1"}))
	require.NoError(t, gate.Respond("job-1", "first"))

	// Second submission while the first is undelivered is rejected.
	err := gate.Respond("job-1", "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already submitted")

	value, err := gate.Await(context.Background(), "job-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", value)

	// After consumption there is nothing to resume.
	err = gate.Respond("job-1", "third")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestInputGate_AwaitTimeout(t *testing.T) {
	gate := newGate()
	require.NoError(t, gate.Request("job-1", schemas.UserInputRequest{JobID: "job-1"}))

	start := time.Now()
	_, err := gate.Await(context.Background(), "job-1", 30*time.Millisecond)
	require.ErrorIs(t, err, ErrInputTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// Timeout removes the pending entry.
	_, ok := gate.Pending("job-1")
	assert.False(t, ok)
}

func TestInputGate_AwaitContextCancellation(t *testing.T) {
	gate := newGate()
	require.NoError(t, gate.Request("job-1", schemas.UserInputRequest{JobID: "job-1"}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := gate.Await(ctx, "job-1", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInputGate_AwaitWithoutRequest(t *testing.T) {
	gate := newGate()
	_, err := gate.Await(context.Background(), "nobody-asked", time.Second)
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestInputGate_Clear(t *testing.T) {
	gate := newGate()
	require.NoError(t, gate.Request("job-1", schemas.UserInputRequest{JobID: "job-1"}))
	gate.Clear("job-1")

	_, ok := gate.Pending("job-1")
	assert.False(t, ok)
	assert.ErrorIs(t, gate.Respond("job-1", "late"), ErrNoPendingRequest)
}
