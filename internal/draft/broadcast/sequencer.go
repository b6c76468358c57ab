package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kettleofketchup/draftforge/internal/draft/events"
	"github.com/kettleofketchup/draftforge/internal/models"
)

// Sink delivers a sequenced payload to every subscriber of a channel. A
// failing sink must not affect the draft: errors are logged and the payload
// is dropped.
type Sink interface {
	Deliver(channel string, payload []byte) error
}

// Envelope is the wire shape of every outbound event. DraftState carries the
// full session snapshot so a client that sees a sequence gap can resync
// without a separate fetch.
type Envelope struct {
	Type       string               `json:"type"`
	EventType  string               `json:"eventType"`
	Sequence   int64                `json:"sequence"`
	DraftState *models.DraftSession `json:"draftState,omitempty"`
	Metadata   json.RawMessage      `json:"metadata,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// DraftChannel names the per-session broadcast channel.
func DraftChannel(sessionID uuid.UUID) string {
	return "draft:" + sessionID.String()
}

// TournamentChannel names the tournament-scoped mirror channel.
func TournamentChannel(tournamentID uuid.UUID) string {
	return "tournament:" + tournamentID.String()
}

// Sequencer stamps outbound events with per-channel strictly increasing
// sequence numbers and fans them out to its sinks. Publishing never blocks
// the caller: events queue onto a buffered channel drained by Start, and a
// full queue drops with a warning.
type Sequencer struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64

	queue chan job
	sinks []Sink
}

type job struct {
	channels []string
	event    events.Event
	snapshot *models.DraftSession
}

func NewSequencer(sinks ...Sink) *Sequencer {
	return &Sequencer{
		counters: make(map[string]*atomic.Int64),
		queue:    make(chan job, 256),
		sinks:    sinks,
	}
}

// AddSink registers a delivery target. Must be called before Start.
func (s *Sequencer) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// Start drains the queue until the context is cancelled.
func (s *Sequencer) Start(ctx context.Context) {
	log.Info().Msg("broadcast sequencer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast sequencer shutting down")
			return
		case j := <-s.queue:
			s.fanOut(j)
		}
	}
}

// Publish enqueues one event for delivery on each named channel. Each
// channel receives its own independent sequence number.
func (s *Sequencer) Publish(channels []string, ev events.Event, snapshot *models.DraftSession) {
	select {
	case s.queue <- job{channels: channels, event: ev, snapshot: snapshot}:
	default:
		log.Warn().
			Str("event_type", string(ev.Type)).
			Str("session_id", ev.SessionID.String()).
			Msg("broadcast queue full, dropping event")
	}
}

// Current returns the last sequence number handed out for a channel.
func (s *Sequencer) Current(channel string) int64 {
	return s.counter(channel).Load()
}

func (s *Sequencer) counter(channel string) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[channel]
	if !ok {
		c = &atomic.Int64{}
		s.counters[channel] = c
	}
	return c
}

func (s *Sequencer) fanOut(j job) {
	metadata, err := events.MarshalPayload(j.event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(j.event.Type)).Msg("failed to marshal event payload")
		return
	}

	for _, channel := range j.channels {
		seq := s.counter(channel).Add(1)
		envelope := Envelope{
			Type:       "draft_event",
			EventType:  string(j.event.Type),
			Sequence:   seq,
			DraftState: j.snapshot,
			Metadata:   metadata,
			Timestamp:  j.event.OccurredAt,
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			log.Error().Err(err).Str("channel", channel).Msg("failed to marshal envelope")
			continue
		}
		for _, sink := range s.sinks {
			if err := sink.Deliver(channel, payload); err != nil {
				log.Warn().
					Err(err).
					Str("channel", channel).
					Str("event_type", string(j.event.Type)).
					Int64("sequence", seq).
					Msg("broadcast delivery failed, dropping")
			}
		}
	}
}
