package await

import (
	"time"

	"github.com/promptwait/promptwait/pkg/gateway"
)

const (
	DefaultPollInterval     = 3 * time.Second
	DefaultOverallTimeout   = 300 * time.Second
	DefaultMaxUnknownStreak = 5
	DefaultNotFoundGrace    = 3
)

// ProgressFunc receives the latest observation once per poll while the job
// executes. It is the only place partial progress is visible. Implementations
// must not block; the poll loop calls them inline.
type ProgressFunc func(gateway.ExecutionStatus)

// Config controls one Run. The zero value is usable: zero fields are filled
// from the documented defaults.
type Config struct {
	// PollInterval paces every boundary poll, both ticket resolution and
	// execution status.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// OverallTimeout budgets the entire run: ticket resolution and execution
	// polling share it. A job that spends the whole budget queued still
	// reports a timeout outcome.
	OverallTimeout time.Duration `mapstructure:"overall_timeout"`

	// MaxUnknownStreak aborts the run after this many consecutive "unknown"
	// status polls. Any recognized state resets the streak.
	MaxUnknownStreak int `mapstructure:"max_unknown_streak"`

	// NotFoundGrace tolerates this many consecutive ticket 404s before
	// declaring the ticket failed; a fresh ticket may lag behind the
	// boundary's own bookkeeping.
	NotFoundGrace int `mapstructure:"not_found_grace"`

	// ArtifactGlob, when set, keeps only artifacts whose filename matches the
	// doublestar pattern (e.g. "*.png").
	ArtifactGlob string `mapstructure:"artifact_glob"`

	// OnProgress is invoked once per execution poll with the latest status.
	OnProgress ProgressFunc `mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = DefaultOverallTimeout
	}
	if c.MaxUnknownStreak <= 0 {
		c.MaxUnknownStreak = DefaultMaxUnknownStreak
	}
	if c.NotFoundGrace <= 0 {
		c.NotFoundGrace = DefaultNotFoundGrace
	}
	return c
}
