// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversMatchingMutationsOnly(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(Filter{SchemaKeys: []string{"lix_key_value"}})
	defer sub.Close()

	err := bus.Publish(context.Background(), []CommitMutation{
		{SchemaKey: "lix_key_value", EntityID: "k1"},
		{SchemaKey: "lix_file_descriptor", EntityID: "f1"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, ok, err := sub.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch.Mutations, 1)
	assert.Equal(t, "k1", batch.Mutations[0].EntityID)
}

func TestPublishExcludesWriterKey(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(Filter{SchemaKeys: []string{"lix_key_value"}, ExcludeWriterKeys: []string{"ui"}})
	defer sub.Close()

	require.NoError(t, bus.Publish(context.Background(), []CommitMutation{
		{SchemaKey: "lix_key_value", EntityID: "k1", WriterKey: "ui"},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok, "a writer_key-excluded mutation must not produce a batch")
}

func TestPublishWithNoMatchesSendsNoBatch(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(Filter{SchemaKeys: []string{"lix_file_descriptor"}})
	defer sub.Close()

	require.NoError(t, bus.Publish(context.Background(), []CommitMutation{
		{SchemaKey: "lix_key_value", EntityID: "k1"},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
}

func TestSubscribeWithNoSchemaKeysMatchesEverything(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(Filter{})
	defer sub.Close()

	require.NoError(t, bus.Publish(context.Background(), []CommitMutation{
		{SchemaKey: "anything", EntityID: "x"},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, ok, err := sub.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Mutations, 1)
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(Filter{})
	sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
