// Package relay fans turno state changes out to display clients. Delivery is
// a latency hint only: monitors poll the authoritative state and must keep
// working when nothing is listening here, so every failure path drops the
// event after logging it.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Event struct {
	Tipo      string      `json:"tipo"`
	SectorID  string      `json:"sector_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Sink delivers one serialized event. Errors are the sink's own problem to
// describe; the relay only logs them.
type Sink interface {
	Deliver(ctx context.Context, event Event, payload []byte) error
}

type Relay struct {
	logger  zerolog.Logger
	sinks   []Sink
	events  chan Event
	timeout time.Duration
	done    chan struct{}
	cancel  context.CancelFunc
}

type Options struct {
	Buffer  int
	Timeout time.Duration
}

func New(logger zerolog.Logger, options Options, sinks ...Sink) *Relay {
	buffer := options.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		logger:  logger,
		sinks:   sinks,
		events:  make(chan Event, buffer),
		timeout: timeout,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go r.run(ctx)
	return r
}

// Publish enqueues an event without ever blocking the caller. A full queue
// drops the event; the state transition already committed and polling will
// pick it up.
func (r *Relay) Publish(tipo, sectorID string, payload interface{}) {
	event := Event{
		Tipo:      tipo,
		SectorID:  sectorID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case r.events <- event:
	default:
		r.logger.Warn().Str("tipo", tipo).Msg("relay queue full, event dropped")
	}
}

func (r *Relay) Stop() {
	r.cancel()
	<-r.done
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.events:
			r.deliver(ctx, event)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("tipo", event.Tipo).Msg("relay marshal error")
		return
	}
	for _, sink := range r.sinks {
		deliverCtx, cancel := context.WithTimeout(ctx, r.timeout)
		if err := sink.Deliver(deliverCtx, event, payload); err != nil {
			r.logger.Debug().Err(err).Str("tipo", event.Tipo).Msg("relay sink unavailable")
		}
		cancel()
	}
}

// HubSink pushes events to connected realtime clients.
type HubSink struct {
	Hub interface {
		Broadcast(payload []byte, sectorID string)
	}
}

func (s HubSink) Deliver(ctx context.Context, event Event, payload []byte) error {
	s.Hub.Broadcast(payload, event.SectorID)
	return nil
}

// WebhookSink posts events to an external display service, mirroring the
// optional push channel some waiting-room screens consume.
type WebhookSink struct {
	URL    string
	Token  string
	Client *http.Client
}

func (s WebhookSink) Deliver(ctx context.Context, event Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook rejected event")
	}
	return nil
}
