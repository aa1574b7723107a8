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

package shutdown

import "sync"

// Manager is a one-shot shutdown latch shared between the signal handler,
// the HTTP layer and background workers.
type Manager struct {
	once sync.Once
	done chan struct{}
}

func NewManager() *Manager {
	return &Manager{done: make(chan struct{})}
}

// Shutdown marks the process as shutting down. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.done) })
}

// Wait returns a channel closed once shutdown has been requested.
func (m *Manager) Wait() <-chan struct{} {
	return m.done
}

// InProgress reports whether shutdown has been requested.
func (m *Manager) InProgress() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
