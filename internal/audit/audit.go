// Package audit carries credential and authorization outcomes of logon
// sessions to a sink without blocking the connection that produced them.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types.
const (
	EventLogonSuccess      = "logon_success"
	EventLogonFailure      = "logon_failure"
	EventReconnectSuccess  = "reconnect_success"
	EventReconnectFailure  = "reconnect_failure"
	EventUnknownAccount    = "unknown_account"
	EventAccountBanned     = "account_banned"
	EventAccountAutoBanned = "account_auto_banned"
	EventIPLocked          = "ip_locked"
	EventCountryLocked     = "country_locked"
	EventClientLocked      = "client_locked"
	EventVersionRejected   = "version_rejected"
	EventTwoFactorFailure  = "two_factor_failure"
	EventProtocolViolation = "protocol_violation"
)

// Event is one audited session outcome.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	AccountID uint32            `json:"account_id,omitempty"`
	ConnID    string            `json:"conn_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Result    string            `json:"result,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

// Emit implements Sink.
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a sink backed by a channel of the given capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

// Emit implements Sink. It blocks until the event is buffered or ctx ends.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receiving side of the channel.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements Sink. Encoding and write errors are dropped.
func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
