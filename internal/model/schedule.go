package model

import (
	"fmt"
	"strings"
)

// Frequency is how often the scheduled backup recurs.
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
	FrequencyCustom  Frequency = "custom"
)

// ScheduleConfig is the process-wide recurring backup definition.
type ScheduleConfig struct {
	Enabled   bool         `json:"enabled"`
	Frequency Frequency    `json:"frequency"`
	Types     []BackupType `json:"types"`
	// Cron is an optional five-field cron expression used with the custom
	// frequency.
	Cron string `json:"cron,omitempty"`
}

// Normalize fills defaults and validates the document in place.
func (c *ScheduleConfig) Normalize() error {
	c.Frequency = Frequency(strings.ToLower(strings.TrimSpace(string(c.Frequency))))
	if c.Frequency == "" {
		c.Frequency = FrequencyWeekly
	}
	switch c.Frequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly, FrequencyCustom:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrConfigInvalid, c.Frequency)
	}
	if len(c.Types) == 0 {
		c.Types = append([]BackupType(nil), AllBackupTypes...)
	}
	types, err := NormalizeTypes(c.Types)
	if err != nil {
		return err
	}
	c.Types = types
	c.Cron = strings.TrimSpace(c.Cron)
	return nil
}
