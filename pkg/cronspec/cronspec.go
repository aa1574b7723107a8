// Copyright 2026 AskAnna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cronspec canonicalizes schedule definitions and computes next run
// moments. A definition is one of: a 5-field cron string, a mapping of named
// fields (minute/hour/day/month/weekday), or one of the @-aliases.
package cronspec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalid marks every canonicalization failure.
var ErrInvalid = errors.New("invalid cron definition")

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

var aliases = map[string]string{
	"@yearly":  "0 0 1 1 *",
	"@monthly": "0 0 1 * *",
	"@weekly":  "0 0 * * 0",
	"@daily":   "0 0 * * *",
	"@hourly":  "0 * * * *",
}

// Field order and defaults for mapping definitions. Minute and hour default
// to 0, the calendar fields to "*".
var fields = []struct {
	name string
	def  string
}{
	{"minute", "0"},
	{"hour", "0"},
	{"day", "*"},
	{"month", "*"},
	{"weekday", "*"},
}

// Canonicalize turns any accepted definition shape into a canonical 5-field
// string: single spaces, alias expanded, mapping fields in cron order.
func Canonicalize(raw any) (string, error) {
	switch def := raw.(type) {
	case string:
		return canonicalizeString(def)
	case map[string]any:
		return canonicalizeMapping(def)
	case map[any]any:
		m := make(map[string]any, len(def))
		for k, v := range def {
			ks, ok := k.(string)
			if !ok {
				return "", fmt.Errorf("%w: non-string key %v", ErrInvalid, k)
			}
			m[ks] = v
		}
		return canonicalizeMapping(m)
	default:
		return "", fmt.Errorf("%w: unsupported definition type %T", ErrInvalid, raw)
	}
}

// Parse validates a canonical 5-field string and returns its schedule.
func Parse(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return sched, nil
}

// Next computes the first tick of spec strictly after t, evaluated in the
// given IANA time zone and returned in UTC.
func Next(spec, timezone string, t time.Time) (time.Time, error) {
	sched, err := Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalid, timezone)
	}
	return sched.Next(t.In(loc)).UTC(), nil
}

func canonicalizeString(def string) (string, error) {
	def = strings.TrimSpace(def)
	if strings.HasPrefix(def, "@") {
		expanded, ok := aliases[def]
		if !ok {
			return "", fmt.Errorf("%w: unknown alias %q", ErrInvalid, def)
		}
		return expanded, nil
	}

	parts := strings.Fields(def)
	if len(parts) != 5 {
		return "", fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalid, len(parts))
	}
	canonical := strings.Join(parts, " ")
	if _, err := parser.Parse(canonical); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return canonical, nil
}

func canonicalizeMapping(def map[string]any) (string, error) {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.name] = true
	}

	var invalid []string
	for k := range def {
		if !known[k] {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return "", fmt.Errorf("%w: invalid keys: %s", ErrInvalid, strings.Join(invalid, ", "))
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := def[f.name]
		if !ok || v == nil {
			parts = append(parts, f.def)
			continue
		}
		parts = append(parts, fieldString(v))
	}

	canonical := strings.Join(parts, " ")
	if _, err := parser.Parse(canonical); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return canonical, nil
}

func fieldString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	case uint64:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%d", int64(t))
	default:
		return fmt.Sprintf("%v", t)
	}
}
