// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"sync"
)

// CommitMutation is one row affected by a committed transaction, the
// unit the event bus filters and batches (spec §4.10).
type CommitMutation struct {
	SchemaKey   string
	EntityID    string
	FileID      string
	VersionID   string
	ChangeID    string
	WriterKey   string
	IsTombstone bool
	Snapshot    string
}

// Filter selects which mutations a subscriber receives (spec §6
// `state_commit_events(filter)`). An empty SchemaKeys means "every
// schema_key"; ExcludeWriterKeys drops mutations tagged with any of the
// listed writer keys regardless of schema_key.
type Filter struct {
	SchemaKeys        []string
	ExcludeWriterKeys []string
}

func (f Filter) matches(m CommitMutation) bool {
	if len(f.SchemaKeys) > 0 {
		found := false
		for _, k := range f.SchemaKeys {
			if k == m.SchemaKey {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, w := range f.ExcludeWriterKeys {
		if w == m.WriterKey {
			return false
		}
	}
	return true
}

// Batch is everything one committed transaction contributed that
// matched a subscriber's filter (spec §4.10 "A transaction emits zero
// or one batch").
type Batch struct {
	Mutations []CommitMutation
}

// batchQueueDepth bounds how many unconsumed batches a subscription
// holds before Publish blocks on it; a slow consumer applies backpressure
// to the committing transaction rather than silently dropping batches.
const batchQueueDepth = 64

// Subscription is a pull-based handle returned by Bus.Subscribe.
type Subscription struct {
	filter Filter
	ch     chan Batch
	bus    *Bus
}

// Next blocks until a batch is available, ctx is done, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Batch, bool, error) {
	select {
	case b, ok := <-s.ch:
		if !ok {
			return Batch{}, false, nil
		}
		return b, true, nil
	case <-ctx.Done():
		return Batch{}, false, ctx.Err()
	}
}

// Close unsubscribes. Next still returns any batches already queued,
// then (Batch{}, false, nil).
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus fans committed-transaction mutation batches out to subscribers
// (spec §4.10).
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers filter and returns the handle to pull batches
// from (spec §6 `state_commit_events(filter)`).
func (b *Bus) Subscribe(filter Filter) *Subscription {
	s := &Subscription{filter: filter, ch: make(chan Batch, batchQueueDepth), bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Publish is called exactly once per committed transaction (spec §4.8
// step 7 "broadcast a state-commit batch to subscribers"). Each
// subscriber receives its own filtered Batch, or none at all if nothing
// in `mutations` matched its Filter.
func (b *Bus) Publish(ctx context.Context, mutations []CommitMutation) error {
	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		matched := make([]CommitMutation, 0, len(mutations))
		for _, m := range mutations {
			if s.filter.matches(m) {
				matched = append(matched, m)
			}
		}
		if len(matched) == 0 {
			continue
		}
		select {
		case s.ch <- Batch{Mutations: matched}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
