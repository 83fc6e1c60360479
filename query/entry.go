package query

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle position of a cache entry.
type State string

const (
	StateAbsent   State = "absent"
	StateFetching State = "fetching"
	StateFresh    State = "fresh"
	StateStale    State = "stale"
	StateErrored  State = "errored"
)

type entry struct {
	key        Key
	data       json.RawMessage
	updatedAt  time.Time
	lastUsedAt time.Time
	stale      bool
	err        error
	failures   int

	fetching       bool
	refetchPending bool
	// invalidated is set when Invalidate lands while a fetch is running, whose result may
	// predate the change.
	invalidated bool
	waiters     int
}

func (e *entry) store(data json.RawMessage, now time.Time) {
	e.data = data
	e.updatedAt = now
	e.lastUsedAt = now
	e.stale = false
	e.err = nil
	e.failures = 0
}

func (e *entry) hasData() bool {
	return len(e.data) > 0
}

func (e *entry) state() State {
	switch {
	case e.fetching:
		return StateFetching
	case e.err != nil:
		return StateErrored
	case e.stale:
		return StateStale
	case e.hasData():
		return StateFresh
	default:
		return StateAbsent
	}
}

func (e *entry) persisted() Entry {
	pe := Entry{
		Key:          e.key,
		Data:         e.data,
		UpdatedAt:    e.updatedAt,
		LastUsedAt:   e.lastUsedAt,
		Stale:        e.stale,
		FailureCount: e.failures,
	}
	if e.err != nil {
		pe.Error = e.err.Error()
	}
	return pe
}

// Entry is the persisted form of a cached query.
type Entry struct {
	Key          Key             `json:"key"`
	Data         json.RawMessage `json:"data"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	LastUsedAt   time.Time       `json:"lastUsedAt"`
	Stale        bool            `json:"stale,omitempty"`
	Error        string          `json:"error,omitempty"`
	FailureCount int             `json:"failureCount,omitempty"`
}

func (pe Entry) restore() *entry {
	e := &entry{
		key:        pe.Key,
		data:       pe.Data,
		updatedAt:  pe.UpdatedAt,
		lastUsedAt: pe.LastUsedAt,
		stale:      pe.Stale,
		failures:   pe.FailureCount,
	}
	if pe.Error != "" {
		e.err = errors.New(pe.Error)
	}
	return e
}

// Snapshot is the whole cache as written to durable storage.
type Snapshot struct {
	Buster    string    `json:"buster"`
	Timestamp time.Time `json:"timestamp"`
	Entries   []Entry   `json:"entries"`
}
