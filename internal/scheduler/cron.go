// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field form plus descriptors such as
// @daily and @every 15m.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron is a parsed schedule pattern: minute hour day-of-month month
// day-of-week.
type Cron struct {
	expr     string
	schedule cron.Schedule
}

// ParseCron parses a 5-field pattern or a descriptor. Fields accept *, n,
// n-m, comma lists and steps (*/s, n/s, n-m/s).
func ParseCron(expr string) (*Cron, error) {
	normalized := strings.Join(strings.Fields(expr), " ")
	schedule, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid cron pattern %q: %w", expr, err)
	}
	return &Cron{expr: normalized, schedule: schedule}, nil
}

// String returns the normalized pattern.
func (c *Cron) String() string { return c.expr }

// Next returns the first matching minute strictly after t, evaluated in loc
// (UTC when nil). It returns the zero time if nothing matches within five
// years, which only happens for impossible dates such as 30 February.
func (c *Cron) Next(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return c.schedule.Next(t.In(loc))
}
