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

// Package apierror defines the error taxonomy surfaced by the core. The HTTP
// layer maps kinds to status codes; components wrap infrastructure errors
// before they cross the service boundary.
package apierror

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for callers.
type Kind string

const (
	// NotFound covers both missing and invisible objects, deliberately
	// indistinguishable to prevent existence leaks.
	NotFound     Kind = "not-found"
	InvalidInput Kind = "invalid-input"
	Conflict     Kind = "conflict"
	Incomplete   Kind = "incomplete"
	Timeout      Kind = "timeout"
	Integrity    Kind = "integrity"
	RunNotActive Kind = "run-not-active"
	SettingType  Kind = "setting-type"
	Internal     Kind = "internal"
)

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *kindError) Unwrap() error {
	return e.err
}

// E creates a taxonomy error with a formatted message.
func E(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an underlying error, keeping its chain.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrap(err, msg)}
}

// KindOf extracts the kind of err, Internal when untagged.
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
