package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": dependency-free append-only JSON Lines file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one delivery attempt. Keep it compact and schema-stable.
type Entry struct {
	At          time.Time `json:"at"`
	Account     string    `json:"account"`
	Destination string    `json:"destination"`
	Kind        string    `json:"kind"` // "text", "voice_note", "video_note"
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms"`
}
