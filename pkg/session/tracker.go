package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// DefaultLabel names a statement opened without one.
const DefaultLabel = "Statement 1"

type entry struct {
	mu   sync.Mutex
	info Info
	stmt *statement.Statement
}

// Tracker provides thread-safe management of editing sessions.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	logger   *slog.Logger

	// startedAt is used by the status endpoint to report uptime.
	startedAt time.Time
	version   string
}

// NewTracker creates a new session tracker.
func NewTracker(logger *slog.Logger, version string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Tracker{
		sessions:  make(map[string]*entry),
		logger:    logger,
		startedAt: time.Now(),
		version:   version,
	}
}

// StartedAt returns the time the tracker was created.
func (t *Tracker) StartedAt() time.Time {
	return t.startedAt
}

// Version returns the version string.
func (t *Tracker) Version() string {
	return t.version
}

// UptimeSeconds returns seconds since the tracker was created.
func (t *Tracker) UptimeSeconds() float64 {
	return time.Since(t.startedAt).Seconds()
}

// Start opens a session for account. A nil statement starts a fresh one;
// otherwise the session edits a copy of s.
func (t *Tracker) Start(account string, s *statement.Statement) Info {
	if s == nil {
		s = statement.New(DefaultLabel)
	} else {
		s = s.Clone()
	}
	now := time.Now()
	e := &entry{
		stmt: s,
		info: Info{
			ID:        uuid.NewString(),
			Account:   account,
			Status:    StatusEditing,
			StartTime: now,
			UpdatedAt: now,
		},
	}
	e.info.refresh(s)

	t.mu.Lock()
	t.sessions[e.info.ID] = e
	t.mu.Unlock()

	t.logger.Info("Session started",
		"session_id", e.info.ID,
		"account", account,
		"conditions", e.info.Conditions,
	)
	return e.info
}

func (t *Tracker) lookup(id string) (*entry, error) {
	t.mu.RLock()
	e, ok := t.sessions[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return e, nil
}

// Get returns the session's info.
func (t *Tracker) Get(id string) (Info, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info, nil
}

// Statement returns a copy of the session's statement.
func (t *Tracker) Statement(id string) (*statement.Statement, Info, error) {
	e, err := t.lookup(id)
	if err != nil {
		return nil, Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stmt.Clone(), e.info, nil
}

// Update runs fn on the session's statement while holding the session lock.
// fn works on a copy that replaces the statement only when fn succeeds, so
// a failed edit leaves the session untouched.
func (t *Tracker) Update(id string, fn func(s *statement.Statement) error) (Info, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.stmt.Clone()
	if err := fn(work); err != nil {
		return e.info, err
	}
	e.stmt = work
	e.info.Edits++
	e.info.UpdatedAt = time.Now()
	e.info.refresh(work)
	return e.info, nil
}

// Attach links a session to an existing backend statement and/or draft.
// Empty ids leave the current link unchanged. A session with a statement id
// submits as an edit of that statement.
func (t *Tracker) Attach(id, statementID, draftID string) (Info, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if statementID != "" {
		e.info.StatementID = statementID
	}
	if draftID != "" {
		e.info.DraftID = draftID
	}
	return e.info, nil
}

// MarkSubmitted records the id the persistence service assigned.
func (t *Tracker) MarkSubmitted(id, statementID string, timeframes []string) (Info, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.info.Status = StatusSubmitted
	e.info.StatementID = statementID
	e.info.Stale = false
	e.info.TimeframesRequired = append([]string(nil), timeframes...)
	e.info.UpdatedAt = time.Now()

	t.logger.Info("Session submitted",
		"session_id", id,
		"statement_id", statementID,
		"timeframes", timeframes,
	)
	return e.info, nil
}

// MarkStale flags every session linked to statementID, other than except,
// as editing an outdated copy. It returns the ids of the flagged sessions.
func (t *Tracker) MarkStale(statementID, except string) []string {
	if statementID == "" {
		return nil
	}
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.sessions))
	for id, e := range t.sessions {
		if id != except {
			entries = append(entries, e)
		}
	}
	t.mu.RUnlock()

	var flagged []string
	for _, e := range entries {
		e.mu.Lock()
		if e.info.StatementID == statementID && !e.info.Stale {
			e.info.Stale = true
			flagged = append(flagged, e.info.ID)
		}
		e.mu.Unlock()
	}
	if len(flagged) > 0 {
		t.logger.Info("Sessions marked stale",
			"statement_id", statementID,
			"sessions", flagged,
		)
	}
	return flagged
}

// Close drops a session. It reports whether the session existed.
func (t *Tracker) Close(id string) bool {
	t.mu.Lock()
	_, ok := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()

	if ok {
		t.logger.Info("Session closed", "session_id", id)
	}
	return ok
}

// Count returns the number of open sessions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// List returns the open sessions, newest first. An empty account lists
// every session; limit <= 0 means no limit.
func (t *Tracker) List(account string, limit int) []Info {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.sessions))
	for _, e := range t.sessions {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	result := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		info := e.info
		e.mu.Unlock()
		if account != "" && info.Account != account {
			continue
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
