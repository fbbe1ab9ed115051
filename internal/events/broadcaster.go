// Package events streams job lifecycle events to SSE subscribers. Events are
// published only after the registry has committed them, so a subscriber that
// replays from its last seen id never misses or double-sees an event.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/donovanhide/eventsource"
	"github.com/rs/zerolog"

	"hookforge/internal/domain"
)

// streamEvent adapts a committed job event to the wire format.
type streamEvent struct {
	ev domain.JobEvent
}

func (e streamEvent) Id() string    { return strconv.FormatInt(e.ev.ID, 10) }
func (e streamEvent) Event() string { return "status" }

func (e streamEvent) Data() string {
	payload, err := json.Marshal(map[string]any{
		"id":         e.ev.ID,
		"job_id":     e.ev.JobID,
		"status":     e.ev.Status,
		"message":    e.ev.Message,
		"created_at": e.ev.CreatedAt,
	})
	if err != nil {
		return "{}"
	}
	return string(payload)
}

// endEvent tells subscribers the job reached a terminal state and no further
// events will arrive.
type endEvent struct {
	status domain.JobStatus
}

func (e endEvent) Id() string    { return "" }
func (e endEvent) Event() string { return "end" }
func (e endEvent) Data() string  { return string(e.status) }

// EventLister reads the committed event history of a job.
type EventLister interface {
	ListEvents(ctx context.Context, id string, after int64) ([]domain.JobEvent, error)
}

// Broadcaster fans committed job events out to per-job SSE channels. Wire it
// to the registry with Registry.SetEventHook(b.Publish).
type Broadcaster struct {
	srv    *eventsource.Server
	lister EventLister
	logger zerolog.Logger

	mu         sync.Mutex
	registered map[string]bool
}

func NewBroadcaster(lister EventLister, logger zerolog.Logger) *Broadcaster {
	srv := eventsource.NewServer()
	// Fresh subscribers replay the full history; Replay handles the
	// empty last-id case.
	srv.ReplayAll = true
	return &Broadcaster{
		srv:        srv,
		lister:     lister,
		logger:     logger,
		registered: make(map[string]bool),
	}
}

// Publish forwards a committed event to the job's channel, followed by an
// end marker when the event carries a terminal status.
func (b *Broadcaster) Publish(ev domain.JobEvent) {
	b.srv.Publish([]string{ev.JobID}, streamEvent{ev: ev})
	if ev.Status.IsTerminal() {
		b.srv.Publish([]string{ev.JobID}, endEvent{status: ev.Status})
	}
}

// Handler serves the SSE stream for one job. An after_id query parameter or
// a Last-Event-ID header resumes the stream past already-seen events; a
// fresh subscriber gets the full history first.
func (b *Broadcaster) Handler(jobID string) http.Handler {
	b.register(jobID)
	next := b.srv.Handler(jobID)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if after := r.URL.Query().Get("after_id"); after != "" && r.Header.Get("Last-Event-ID") == "" {
			r.Header.Set("Last-Event-ID", after)
		}
		next(w, r)
	})
}

func (b *Broadcaster) Close() {
	b.srv.Close()
}

// register installs the replay repository for a job channel once.
func (b *Broadcaster) register(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registered[jobID] {
		return
	}
	b.srv.Register(jobID, replayRepo{b: b})
	b.registered[jobID] = true
}

// replayRepo replays committed history on subscribe. The channel name is the
// job id.
type replayRepo struct {
	b *Broadcaster
}

func (r replayRepo) Replay(channel, id string) chan eventsource.Event {
	after := int64(0)
	if id != "" {
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err == nil {
			after = parsed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	history, err := r.b.lister.ListEvents(ctx, channel, after)
	if err != nil {
		r.b.logger.Error().Err(err).Str("job_id", channel).Msg("replay job events")
		return nil
	}

	out := make(chan eventsource.Event, len(history)+1)
	var last domain.JobStatus
	for _, ev := range history {
		out <- streamEvent{ev: ev}
		last = ev.Status
	}
	if last.IsTerminal() {
		out <- endEvent{status: last}
	}
	close(out)
	return out
}
