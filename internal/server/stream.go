package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/arotnep/internal/plan"
)

// innerInterval is the minimum spacing between inner-loop updates of a job.
const innerInterval = 500 * time.Millisecond

// ProgressEvent is one update of a job: its state and, while it solves, the
// latest bound sample.
type ProgressEvent struct {
	JobID     string            `json:"jobId"`
	State     JobState          `json:"state"`
	Outer     int               `json:"outer"`
	Sample    *plan.BoundSample `json:"sample,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Kind names the SSE event type: "state" for bare state changes, otherwise
// the level of the sample.
func (e ProgressEvent) Kind() string {
	if e.Sample == nil {
		return "state"
	}
	return e.Sample.Level
}

// urgent events skip throttling.
func (e ProgressEvent) urgent() bool {
	return e.Sample == nil || e.Sample.Level == "outer" || e.State != StateRunning
}

// EventBroadcaster fans job progress out to stream subscribers. State
// changes and outer-loop samples are delivered as they arrive. Inner-loop
// and alternation samples of a job are coalesced to one per interval; the
// newest held sample is sent when the interval ends.
type EventBroadcaster struct {
	mu       sync.Mutex
	interval time.Duration
	feeds    map[string]*feed
}

// feed holds the subscribers of one job and its throttle state.
type feed struct {
	subs   map[chan ProgressEvent]struct{}
	last   *ProgressEvent
	held   *ProgressEvent
	sentAt time.Time
	timer  *time.Timer
}

// NewEventBroadcaster returns a broadcaster with the default inner-loop
// interval.
func NewEventBroadcaster() *EventBroadcaster {
	return newEventBroadcaster(innerInterval)
}

func newEventBroadcaster(interval time.Duration) *EventBroadcaster {
	return &EventBroadcaster{
		interval: interval,
		feeds:    make(map[string]*feed),
	}
}

func (eb *EventBroadcaster) feedFor(jobID string) *feed {
	f, ok := eb.feeds[jobID]
	if !ok {
		f = &feed{subs: make(map[chan ProgressEvent]struct{})}
		eb.feeds[jobID] = f
	}
	return f
}

// Subscribe returns a channel receiving the events of jobID. The last
// delivered event, if any, is replayed first.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f := eb.feedFor(jobID)
	ch := make(chan ProgressEvent, 16)
	f.subs[ch] = struct{}{}
	if f.last != nil {
		ch <- *f.last
	}

	slog.Debug("Stream subscribed", "job_id", jobID, "subscribers", len(f.subs))
	return ch
}

// Unsubscribe closes ch unless CleanupJob already did.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f, ok := eb.feeds[jobID]
	if !ok {
		return
	}
	if _, ok := f.subs[ch]; !ok {
		return
	}
	delete(f.subs, ch)
	close(ch)
	slog.Debug("Stream unsubscribed", "job_id", jobID, "subscribers", len(f.subs))
}

// Broadcast delivers event to the subscribers of its job, subject to the
// inner-loop throttle.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f := eb.feedFor(event.JobID)
	if event.urgent() {
		// A held inner sample is older than event; drop it.
		f.held = nil
		if f.timer != nil {
			f.timer.Stop()
			f.timer = nil
		}
		f.send(event)
		return
	}

	wait := eb.interval - time.Since(f.sentAt)
	if wait <= 0 && f.timer == nil {
		f.send(event)
		return
	}
	f.held = &event
	if f.timer == nil {
		var timer *time.Timer
		timer = time.AfterFunc(wait, func() { eb.release(event.JobID, f, timer) })
		f.timer = timer
	}
}

// release sends the held sample of f once its interval has passed.
func (eb *EventBroadcaster) release(jobID string, f *feed, timer *time.Timer) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.feeds[jobID] != f || f.timer != timer {
		return
	}
	f.timer = nil
	if f.held != nil {
		f.send(*f.held)
		f.held = nil
	}
}

func (f *feed) send(event ProgressEvent) {
	f.last = &event
	f.sentAt = time.Now()
	for ch := range f.subs {
		select {
		case ch <- event:
		default:
			slog.Warn("Stream subscriber lagging, event dropped", "job_id", event.JobID, "kind", event.Kind())
		}
	}
}

// CleanupJob closes all subscribers of a job and forgets its events.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f, ok := eb.feeds[jobID]
	if !ok {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	for ch := range f.subs {
		close(ch)
	}
	delete(eb.feeds, jobID)
	slog.Debug("Stream closed", "job_id", jobID)
}

// handleJobStream serves GET /api/v1/jobs/:id/stream as server-sent
// events. The stream opens with the current job state and ends once the
// job finishes.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	current := ProgressEvent{
		JobID:     job.ID,
		State:     job.State,
		Outer:     job.Outer,
		Sample:    job.Last,
		Timestamp: time.Now(),
	}
	if err := writeSSEEvent(w, current); err != nil {
		slog.Error("Failed to write stream event", "job_id", jobID, "error", err)
		return
	}
	flusher.Flush()
	if job.State.Finished() {
		return
	}

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Stream client gone", "job_id", jobID)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write stream event", "job_id", jobID, "error", err)
				return
			}
			flusher.Flush()
			if event.State.Finished() {
				return
			}
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes event as a typed SSE message with a JSON payload.
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind(), data)
	return err
}
