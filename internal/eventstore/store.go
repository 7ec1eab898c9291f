// Package eventstore defines the append-only log every aggregate is folded from.
//
// Streams are keyed by StreamID and versioned from 1. Appends carry the version
// the writer last observed; the store is the single arbiter of ordering within a
// stream and rejects stale writers with ErrConcurrencyConflict. Records are never
// updated or deleted.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"argus/pkg/domain"
)

// NoStream is the expected version for creating a stream that must not exist yet.
const NoStream int64 = -1

var (
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrAggregateAlreadyExists = errors.New("aggregate already exists")
	ErrEmptyAppend            = errors.New("append requires at least one event")
	ErrInvalidStream          = errors.New("invalid stream id")
)

// StreamID names one aggregate's stream: "<kind>-<id>".
type StreamID string

const (
	KindApplication = "application"
	KindMembership  = "membership"
)

func ApplicationStream(id domain.ApplicationID) StreamID {
	return StreamID(KindApplication + "-" + id.String())
}

func MembershipStream(id domain.MembershipID) StreamID {
	return StreamID(KindMembership + "-" + id.String())
}

// Kind returns the aggregate kind prefix.
func (s StreamID) Kind() string {
	kind, _, _ := strings.Cut(string(s), "-")
	return kind
}

// AggregateID returns the part after the kind prefix.
func (s StreamID) AggregateID() string {
	_, rest, _ := strings.Cut(string(s), "-")
	return rest
}

func (s StreamID) String() string { return string(s) }

func (s StreamID) Validate() error {
	kind, rest, ok := strings.Cut(string(s), "-")
	if !ok || kind == "" || rest == "" {
		return fmt.Errorf("%w: %q", ErrInvalidStream, string(s))
	}
	return nil
}

// Event is an encoded domain event ready to be appended.
type Event struct {
	ID        uuid.UUID
	Type      string
	Timestamp time.Time
	Payload   json.RawMessage
}

// Record is a persisted event.
type Record struct {
	EventID   uuid.UUID
	StreamID  StreamID
	Version   int64
	GlobalSeq int64
	Type      string
	Timestamp time.Time
	Payload   json.RawMessage
}

// Store is implemented by every backend. Appends to different streams must not
// contend with each other.
type Store interface {
	// Append writes events to the end of stream and returns the stream's new
	// version. expectedVersion must equal the current version, or be NoStream
	// for a stream that does not exist.
	Append(ctx context.Context, stream StreamID, expectedVersion int64, events ...Event) (int64, error)
	// ReadStream returns the stream's records in append order, empty if missing.
	ReadStream(ctx context.Context, stream StreamID) ([]Record, error)
	// ReadAll returns records with GlobalSeq > afterSeq in global append order.
	// limit <= 0 means no limit.
	ReadAll(ctx context.Context, afterSeq int64, limit int) ([]Record, error)
	// Version returns the stream's current version, 0 if missing.
	Version(ctx context.Context, stream StreamID) (int64, error)
}

// CheckExpected validates expectedVersion against the stream's actual version.
func CheckExpected(stream StreamID, expected, actual int64) error {
	if expected == NoStream {
		if actual > 0 {
			return fmt.Errorf("%w: %s at version %d", ErrAggregateAlreadyExists, stream, actual)
		}
		return nil
	}
	if expected != actual {
		return fmt.Errorf("%w: %s expected version %d, actual %d", ErrConcurrencyConflict, stream, expected, actual)
	}
	return nil
}

// Prepare validates an append request and fills in missing event ids and
// timestamps. Backends call it before taking any lock.
func Prepare(stream StreamID, events []Event, now time.Time) ([]Event, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}
	out := make([]Event, len(events))
	for i, evt := range events {
		if evt.Type == "" {
			return nil, fmt.Errorf("event %d: type is required", i)
		}
		if evt.ID == uuid.Nil {
			evt.ID = uuid.New()
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = now
		}
		evt.Timestamp = evt.Timestamp.UTC()
		if len(evt.Payload) == 0 {
			evt.Payload = json.RawMessage("{}")
		}
		out[i] = evt
	}
	return out, nil
}
