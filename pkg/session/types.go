// Package session keeps the in-progress statements of open editing
// sessions. Each session owns one mutable statement; edits to a session are
// serialized so concurrent requests never touch the same statement at once.
package session

import (
	"errors"
	"time"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// ErrNotFound is returned for an unknown or closed session.
var ErrNotFound = errors.New("session not found")

// Status is the lifecycle state of a session.
type Status string

const (
	StatusEditing   Status = "editing"
	StatusSubmitted Status = "submitted"
)

// Info describes a session without exposing its statement.
type Info struct {
	ID                 string         `json:"session_id"`
	Account            string         `json:"account"`
	Label              string         `json:"label"`
	Side               statement.Side `json:"side"`
	Conditions         int            `json:"conditions"`
	RiskRules          int            `json:"risk_rules"`
	Status             Status         `json:"status"`
	StatementID        string         `json:"statement_id,omitempty"`
	DraftID            string         `json:"draft_id,omitempty"`
	Stale              bool           `json:"stale,omitempty"`
	TimeframesRequired []string       `json:"timeframes_required,omitempty"`
	Edits              int            `json:"edits"`
	StartTime          time.Time      `json:"start_time"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ElapsedSeconds returns the seconds since the session started.
func (i *Info) ElapsedSeconds() float64 {
	return time.Since(i.StartTime).Seconds()
}

func (i *Info) refresh(s *statement.Statement) {
	i.Label = s.Label
	i.Side = s.Side
	i.Conditions = len(s.Conditions)
	i.RiskRules = len(s.RiskRules)
}
