// SPDX-License-Identifier: Apache-2.0

// Package detfn implements the deterministic function provider (spec
// §4.4): `uuid_v7()` and `timestamp()`, either backed by real system
// entropy/clock or by a persisted monotonic counter when deterministic
// mode is enabled.
package detfn

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// deterministicUUIDPrefix and the zero-padded 12 hex digit counter
// together produce `01920000-0000-7000-8000-<12 hex>` (spec §4.4, §8
// scenario 5).
const deterministicUUIDPrefix = "01920000-0000-7000-8000-"

// Provider exposes uuid_v7() and timestamp() to the CEL evaluator and to
// default-value evaluation during preprocessing. It is process-wide
// shared state (spec §5 "Shared resources"), owned by an explicit
// EngineState value rather than package globals.
type Provider struct {
	mu            sync.Mutex
	deterministic bool
	// uuidCounter and tsCounter are tracked independently: spec §8
	// scenario 5 exercises three uuid_v7() calls and three timestamp()
	// calls each starting at 0, which only holds if the two functions do
	// not share a single sequence.
	uuidCounter uint64
	tsCounter   uint64
}

// NewProvider creates a system-mode provider. Call EnableDeterministic to
// switch into deterministic mode once the `lix_deterministic_mode`
// key-value row is observed (spec §4.4).
func NewProvider() *Provider {
	return &Provider{}
}

// EnableDeterministic switches the provider into deterministic mode,
// resuming from `startCounter`: the next value to emit, one past the
// highest value a previous process consumed (see HighestConsumed), read
// back from persisted state so replays across processes remain
// consistent (spec §4.4).
func (p *Provider) EnableDeterministic(startCounter uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deterministic = true
	p.uuidCounter = startCounter
	p.tsCounter = startCounter
}

// IsDeterministic reports whether the provider is in deterministic mode.
func (p *Provider) IsDeterministic() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deterministic
}

// UUIDv7 returns the next UUID. In deterministic mode this is a
// monotonically increasing counter encoded per spec §4.4; otherwise a
// real UUIDv7 is generated.
func (p *Provider) UUIDv7() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deterministic {
		id := fmt.Sprintf("%s%012x", deterministicUUIDPrefix, p.uuidCounter)
		p.uuidCounter++
		return id, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Timestamp returns the current ISO-8601 timestamp. In deterministic
// mode this is `1970-01-01T00:00:00.<counter>Z`; otherwise the real
// current time.
func (p *Provider) Timestamp() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deterministic {
		ts := fmt.Sprintf("1970-01-01T00:00:00.%03dZ", p.tsCounter%1000)
		p.tsCounter++
		return ts, nil
	}

	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), nil
}

// HighestConsumed returns the highest (uuid, timestamp) counter values
// consumed so far, i.e. one less than each next value (0 when the next
// value is 0), to persist back on commit; a subsequent process resumes
// by passing that value plus one to EnableDeterministic (spec §4.4, §5
// "Deterministic sequence counter").
func (p *Provider) HighestConsumed() (uuidCounter, tsCounter uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	highest := func(next uint64) uint64 {
		if next == 0 {
			return 0
		}
		return next - 1
	}
	return highest(p.uuidCounter), highest(p.tsCounter)
}
