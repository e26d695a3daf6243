package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Config is the whole daemon configuration. YAML and JSON are both
// accepted; parsing is strict so a typo never silently disables a section.
type Config struct {
	// DataDir holds the registry file and the session credential dir.
	DataDir string `json:"data_dir"`

	Logging  LoggingConfig  `json:"logging"`
	Console  ConsoleConfig  `json:"console"`
	Platform PlatformConfig `json:"platform"`
	Dispatch DispatchConfig `json:"dispatch"`

	// Journal optionally records per-send delivery outcomes.
	Journal *JournalConfig `json:"journal,omitempty"`

	// Schedules are optional recurring broadcasts.
	Schedules []ScheduleConfig `json:"schedules,omitempty"`

	// ChallengeTimeout bounds one interactive login challenge round-trip.
	// Go duration string; empty means 5m.
	ChallengeTimeout string `json:"challenge_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ConsoleConfig configures the operator console bot (the host side of the
// challenge/alert boundary).
type ConsoleConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// PlatformConfig selects the linked messaging-platform driver.
type PlatformConfig struct {
	Driver  string `json:"driver"`
	APIID   int    `json:"api_id,omitempty"`
	APIHash string `json:"api_hash,omitempty"`
}

type DispatchConfig struct {
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	ScratchDir string `json:"scratch_dir,omitempty"`
}

type JournalConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ScheduleConfig is one recurring broadcast: a cron spec, the text to
// send, and the accounts to send from (empty means all active accounts).
type ScheduleConfig struct {
	Schedule string   `json:"schedule"`
	Message  string   `json:"message"`
	Accounts []string `json:"accounts,omitempty"`
}

// scheduleParser is the grammar scheduled broadcasts run with: standard
// 5-field cron, an optional leading seconds field, and @descriptors.
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseScheduleSpec parses a schedules[].schedule value. Validate and the
// schedule runner both go through it, so a spec that survives validation
// is guaranteed to register.
func ParseScheduleSpec(raw string) (cron.Schedule, error) {
	return scheduleParser.Parse(strings.TrimSpace(raw))
}

// Validate checks the parts that must be right before the app starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if strings.TrimSpace(c.Console.Token) == "" {
		return errors.New("console.token is required")
	}
	if len(c.Console.OwnerUserIDs) == 0 {
		return errors.New("console.owner_user_ids must name at least one operator")
	}
	if strings.TrimSpace(c.Platform.Driver) == "" {
		return errors.New("platform.driver is required")
	}
	if _, err := ParseDurationField("challenge_timeout", c.ChallengeTimeout); err != nil {
		return err
	}
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Schedule) == "" {
			return fmt.Errorf("schedules[%d]: schedule is required", i)
		}
		if strings.TrimSpace(s.Message) == "" {
			return fmt.Errorf("schedules[%d]: message is required", i)
		}
		if _, err := ParseScheduleSpec(s.Schedule); err != nil {
			return fmt.Errorf("schedules[%d]: invalid schedule %q: %w", i, s.Schedule, err)
		}
	}
	return nil
}
