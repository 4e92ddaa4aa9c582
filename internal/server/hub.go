// internal/server/hub.go
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/jobs"
)

// subscriberBuffer is the per-stream channel depth. A subscriber that falls
// this far behind starts losing events rather than stalling the mission.
const subscriberBuffer = 64

// terminalEvents end a job's stream. After one of these the hub closes all
// subscriber channels for the job.
var terminalEvents = map[string]bool{
	"finished": true,
	"error":    true,
}

// Hub is the fan-out point between running missions and SSE subscribers. It
// implements schemas.StatusSink: Push never blocks mission control flow and
// swallows its own errors. Events are also persisted through the store so
// late subscribers and restarts can replay.
type Hub struct {
	logger *zap.Logger
	store  jobs.Store

	mu      sync.Mutex
	subs    map[string]map[int]chan schemas.StatusEvent
	history map[string][]schemas.StatusEvent
	done    map[string]bool
	nextID  int
}

var _ schemas.StatusSink = (*Hub)(nil)

func NewHub(logger *zap.Logger, store jobs.Store) *Hub {
	return &Hub{
		logger:  logger.Named("hub"),
		store:   store,
		subs:    make(map[string]map[int]chan schemas.StatusEvent),
		history: make(map[string][]schemas.StatusEvent),
		done:    make(map[string]bool),
	}
}

// Push records and fans out one mission event.
func (h *Hub) Push(jobID, event string, details map[string]interface{}) {
	ev := schemas.StatusEvent{
		JobID:     jobID,
		Event:     event,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	// Persistence is best effort; the live stream must not depend on it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.AppendEvent(ctx, jobID, ev); err != nil {
		h.logger.Warn("Failed to persist status event",
			zap.String("job_id", jobID), zap.String("event", event), zap.Error(err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done[jobID] {
		return
	}
	h.history[jobID] = append(h.history[jobID], ev)

	for _, ch := range h.subs[jobID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than block the mission.
		}
	}

	if terminalEvents[event] {
		h.done[jobID] = true
		for _, ch := range h.subs[jobID] {
			close(ch)
		}
		delete(h.subs, jobID)
	}
}

// Subscribe returns the replay of everything pushed so far plus a live
// channel for what follows, atomically. The channel is closed once the job
// reaches a terminal event. Callers must call the returned cancel func.
func (h *Hub) Subscribe(jobID string) (replay []schemas.StatusEvent, live <-chan schemas.StatusEvent, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay = append(replay, h.history[jobID]...)

	ch := make(chan schemas.StatusEvent, subscriberBuffer)
	if h.done[jobID] {
		close(ch)
		return replay, ch, func() {}
	}

	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[int]chan schemas.StatusEvent)
	}
	id := h.nextID
	h.nextID++
	h.subs[jobID][id] = ch

	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[jobID][id]; ok {
			delete(h.subs[jobID], id)
			close(sub)
		}
	}
	return replay, ch, cancel
}

// Forget drops in-memory history for a finished job. Persisted events stay in
// the store.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, jobID)
	delete(h.done, jobID)
}
