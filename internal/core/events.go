package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"fishercore/internal/blob"

	"github.com/google/uuid"
)

// ErrArchiveDisabled is returned by ListCatches when no catch archive is configured.
var ErrArchiveDisabled = errors.New("catch archive disabled")

// CatchEvent is emitted after a catch commits. It is telemetry, never part
// of the fisher record.
type CatchEvent struct {
	ID         uuid.UUID `json:"id"`
	Wallet     Wallet    `json:"wallet"`
	Address    string    `json:"address"`
	TokenRef   string    `json:"token_ref"`
	Score      uint8     `json:"score"`
	BigFish    bool      `json:"big_fish"`
	Points     uint64    `json:"points"`
	Reputation uint64    `json:"reputation"`
	Rank       Rank      `json:"rank"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EventSink receives committed catch events.
type EventSink interface {
	Publish(ctx context.Context, event CatchEvent) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event CatchEvent) error

// Publish implements EventSink.
func (f EventSinkFunc) Publish(ctx context.Context, event CatchEvent) error { return f(ctx, event) }

// LogEventSink writes each event to a Logger.
type LogEventSink struct {
	logger Logger
}

// NewLogEventSink returns a sink logging at info level.
func NewLogEventSink(logger Logger) *LogEventSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogEventSink{logger: logger}
}

// Publish implements EventSink.
func (s *LogEventSink) Publish(_ context.Context, e CatchEvent) error {
	s.logger.Info("catch recorded",
		"event_id", e.ID.String(),
		"wallet", e.Wallet.String(),
		"token_ref", e.TokenRef,
		"score", e.Score,
		"big_fish", e.BigFish,
		"points", e.Points,
		"reputation", e.Reputation,
		"rank", e.Rank.String(),
	)
	return nil
}

const archivePrefix = "catches"

// CatchArchive persists events as one JSON blob per catch under
// catches/<address>/<event id>.json.
type CatchArchive struct {
	store blob.Store
}

// NewCatchArchive wraps a blob store.
func NewCatchArchive(store blob.Store) *CatchArchive {
	return &CatchArchive{store: store}
}

func archiveKey(address string, id uuid.UUID) string {
	return path.Join(archivePrefix, address, id.String()+".json")
}

// Publish implements EventSink.
func (a *CatchArchive) Publish(ctx context.Context, e CatchEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode catch event: %w", err)
	}
	_, err = a.store.Put(ctx, archiveKey(e.Address, e.ID), bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"wallet": e.Wallet.String(), "rank": e.Rank.String()},
	})
	if err != nil {
		return fmt.Errorf("archive catch %s: %w", e.ID, err)
	}
	return nil
}

// List returns every archived event for address, oldest first.
func (a *CatchArchive) List(ctx context.Context, address string) ([]CatchEvent, error) {
	infos, err := a.store.List(ctx, archivePrefix+"/"+address+"/")
	if err != nil {
		return nil, fmt.Errorf("list catches: %w", err)
	}
	events := make([]CatchEvent, 0, len(infos))
	for _, info := range infos {
		event, err := a.read(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].RecordedAt.Equal(events[j].RecordedAt) {
			return events[i].RecordedAt.Before(events[j].RecordedAt)
		}
		return events[i].ID.String() < events[j].ID.String()
	})
	return events, nil
}

func (a *CatchArchive) read(ctx context.Context, key string) (CatchEvent, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return CatchEvent{}, fmt.Errorf("read catch %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return CatchEvent{}, fmt.Errorf("read catch %s: %w", key, err)
	}
	var event CatchEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return CatchEvent{}, fmt.Errorf("decode catch %s: %w", key, err)
	}
	return event, nil
}
