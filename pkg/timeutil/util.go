/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package timeutil

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	TimeRFC3339Short = "2006-01-02T15:04:05"
	TimeRFC3339Milli = "2006-01-02T15:04:05.999Z"

	// DateCompact is the wire form used inside shard identifiers.
	DateCompact = "20060102"
	DateOnly    = "2006-01-02"
)

func FormatRFC3339(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(TimeRFC3339Short)
}

// FormatRFC3339Milli renders a UTC timestamp with millisecond precision.
func FormatRFC3339Milli(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeRFC3339Milli)
}

func CvtStrToRFC3339Milli(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeRFC3339Milli, timeStr)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// CvtStrToTimeFlexible parses timestamps from external manifests, which show
// up in several layouts depending on the producing tool.
func CvtStrToTimeFlexible(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		TimeRFC3339Milli,
		TimeRFC3339Short,
		"2006-01-02 15:04:05",
		DateOnly,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", timeStr)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns the most recent Monday midnight UTC at or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// StartOfMonth returns the first day of t's month, midnight UTC.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole days from start to end.
func DaysBetween(start, end time.Time) int {
	return int(StartOfDay(end).Sub(StartOfDay(start)).Hours() / 24)
}

func ParseCronStandard(scheduleStr string) (cron.Schedule, float64, error) {
	if scheduleStr == "" {
		return nil, 0, fmt.Errorf("invalid input")
	}
	schedule, err := cron.ParseStandard(scheduleStr)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(),
		0, 0, 0, 0, time.UTC)
	nextTime := schedule.Next(today.UTC())
	interval := nextTime.Sub(today).Seconds()
	return schedule, interval, nil
}

func CvtMilliSecToTime(milliseconds int64) time.Time {
	seconds := milliseconds / 1000
	nanoseconds := (milliseconds % 1000) * 1000000
	return time.Unix(seconds, nanoseconds).UTC()
}
