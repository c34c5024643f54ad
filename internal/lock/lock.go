// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package lock implements the instance lock: a cooperative,
// file-based single-writer lock over a shared data directory. It
// deliberately does not use syscall.Flock, which can't express "steal
// the lock from a dead holder" — stale-lock promotion requires exactly
// that.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Info is the JSON content of the lock file.
type Info struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Hostname  string    `json:"hostname"`
}

// Lock manages mrcis.lock in a data directory.
type Lock struct {
	path       string
	staleAfter time.Duration
	held       bool
}

// New builds a Lock rooted at dataDir/mrcis.lock. staleAfter defaults to
// 90s when zero or negative.
func New(dataDir string, staleAfter time.Duration) *Lock {
	if staleAfter <= 0 {
		staleAfter = 90 * time.Second
	}
	return &Lock{path: filepath.Join(dataDir, "mrcis.lock"), staleAfter: staleAfter}
}

// Path returns the lock file's path.
func (l *Lock) Path() string { return l.path }

// Held reports whether this process currently believes it holds the lock.
func (l *Lock) Held() bool { return l.held }

// TryAcquire attempts to take the lock. It succeeds when the file is
// absent, unparsable, owned by a PID that no longer exists, or whose
// timestamp is older than staleAfter — in any of those cases it
// rewrites the file with this process's PID and the current time.
func (l *Lock) TryAcquire() (bool, error) {
	existing, err := readInfo(l.path)
	if err == nil && !l.isStale(existing) {
		return false, nil
	}

	info := Info{PID: os.Getpid(), StartedAt: timeNow(), Hostname: hostname()}
	if err := writeInfo(l.path, info); err != nil {
		return false, fmt.Errorf("write lock file: %w", err)
	}
	l.held = true
	return true, nil
}

// Heartbeat rewrites the lock file's timestamp, keeping it fresh.
// Callers typically invoke this every staleAfter/3. The
// timestamp field doubles as both "acquired at" and "last known alive
// at" — it is the sole freshness signal the file format carries.
func (l *Lock) Heartbeat() error {
	if !l.held {
		return fmt.Errorf("lock: heartbeat called without holding the lock")
	}
	info := Info{PID: os.Getpid(), StartedAt: timeNow(), Hostname: hostname()}
	if err := writeInfo(l.path, info); err != nil {
		return fmt.Errorf("heartbeat lock file: %w", err)
	}
	return nil
}

// Release deletes the lock file if this process holds it.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock file: %w", err)
	}
	return nil
}

// CheckAndPromote attempts acquisition if this process does not
// currently hold the lock, reporting whether promotion occurred.
func (l *Lock) CheckAndPromote() (bool, error) {
	if l.held {
		return false, nil
	}
	return l.TryAcquire()
}

// Holder returns the lock file's current live holder, or nil when the
// file is absent, unparsable, owned by a dead PID, or stale. It never
// mutates the lock file, so query-shaped callers can inspect writer
// state without racing the writer.
func (l *Lock) Holder() *Info {
	info, err := readInfo(l.path)
	if err != nil {
		return nil
	}
	if l.isStale(info) {
		return nil
	}
	return info
}

// isStale reports whether info represents a lock that may be reclaimed:
// unreadable, owned by a dead PID, or older than staleAfter. Freshness
// is always evaluated against the local clock, tolerating clock skew
// between hosts sharing the data directory.
func (l *Lock) isStale(info *Info) bool {
	if info == nil {
		return true
	}
	if !processAlive(info.PID) {
		return true
	}
	return timeNow().Sub(info.StartedAt) > l.staleAfter
}

func readInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func writeInfo(path string, info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// processAlive checks PID liveness via signal 0, the portable way to
// probe an arbitrary process without actually signaling it.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

// timeNow is a seam so tests can't accidentally depend on wall-clock
// ordering across fast-running assertions; production always uses the
// real clock.
func timeNow() time.Time { return time.Now() }
