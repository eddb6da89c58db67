package cleanup

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config configures the cleanup jobs.
type Config struct {
	// Timeout bounds one sweep or force clear across all tables
	Timeout time.Duration `yaml:"timeout" default:"5m"`

	// ForceClearWindow is how far back ForceClear removes rows
	ForceClearWindow time.Duration `yaml:"forceClearWindow" default:"24h"`

	// Schedule is the cron expression for periodic sweeps
	Schedule string `yaml:"schedule" default:"@every 1h"`

	// ScheduleEnabled starts the periodic sweep with the server
	ScheduleEnabled bool `yaml:"scheduleEnabled" default:"true"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Minute,
		ForceClearWindow: 24 * time.Hour,
		Schedule:         "@every 1h",
		ScheduleEnabled:  true,
	}
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a cron expression (standard five fields or a descriptor).
func ValidateSchedule(schedule string) error {
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("cleanup: timeout must be positive"))
	}
	if c.ForceClearWindow <= 0 {
		errs = append(errs, errors.New("cleanup: forceClearWindow must be positive"))
	}
	if c.ScheduleEnabled {
		if err := ValidateSchedule(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("cleanup: %w", err))
		}
	}
	return errors.Join(errs...)
}
