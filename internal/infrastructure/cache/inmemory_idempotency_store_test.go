package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_Reserve(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("claims new key", func(t *testing.T) {
		jobID, created, err := store.Reserve(ctx, "key-1", "job-1", 1*time.Hour)
		require.NoError(t, err)
		assert.True(t, created, "new key should be claimed")
		assert.Equal(t, "job-1", jobID)
	})

	t.Run("repeat claim maps back to original job", func(t *testing.T) {
		_, created, err := store.Reserve(ctx, "key-2", "job-2", 1*time.Hour)
		require.NoError(t, err)
		assert.True(t, created)

		jobID, created, err := store.Reserve(ctx, "key-2", "job-3", 1*time.Hour)
		require.NoError(t, err)
		assert.False(t, created, "held key should not be re-claimed")
		assert.Equal(t, "job-2", jobID, "loser sees the winning job id")
	})

	t.Run("allows re-claim after expiration", func(t *testing.T) {
		_, created, err := store.Reserve(ctx, "key-3", "job-4", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, created)

		time.Sleep(20 * time.Millisecond)

		jobID, created, err := store.Reserve(ctx, "key-3", "job-5", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, created, "expired key should be claimable again")
		assert.Equal(t, "job-5", jobID)
	})
}

func TestInMemoryIdempotencyStore_Size(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	assert.Equal(t, 0, store.Size(), "empty store should have size 0")

	store.Reserve(ctx, "key-1", "job-1", 1*time.Hour)
	assert.Equal(t, 1, store.Size())

	store.Reserve(ctx, "key-2", "job-2", 1*time.Hour)
	assert.Equal(t, 2, store.Size())

	// Re-claiming an existing key shouldn't increase size
	store.Reserve(ctx, "key-1", "job-3", 1*time.Hour)
	assert.Equal(t, 2, store.Size())
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	store.Reserve(ctx, "short-lived-1", "job-1", 10*time.Millisecond)
	store.Reserve(ctx, "short-lived-2", "job-2", 10*time.Millisecond)
	store.Reserve(ctx, "long-lived", "job-3", 1*time.Hour)

	assert.Equal(t, 3, store.Size())

	time.Sleep(20 * time.Millisecond)

	// Manually trigger cleanup
	store.cleanup()

	// Only long-lived entry should remain
	assert.Equal(t, 1, store.Size())

	jobID, created, err := store.Reserve(ctx, "long-lived", "job-9", 1*time.Hour)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "job-3", jobID)
}

func TestInMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()
	const numGoroutines = 100
	const key = "concurrent-key"

	results := make(chan bool, numGoroutines)

	// Launch concurrent goroutines trying to claim the same key
	for i := 0; i < numGoroutines; i++ {
		go func() {
			_, created, err := store.Reserve(ctx, key, "job-x", 1*time.Hour)
			if err != nil {
				results <- false
			} else {
				results <- created
			}
		}()
	}

	claimedCount := 0
	duplicateCount := 0
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			claimedCount++
		} else {
			duplicateCount++
		}
	}

	// Exactly one goroutine should have claimed the key
	assert.Equal(t, 1, claimedCount, "exactly one goroutine should claim the key")
	assert.Equal(t, numGoroutines-1, duplicateCount, "all others should map to the original claim")
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore()

	// Close should not panic and should return nil
	err := store.Close()
	assert.NoError(t, err)

	// Multiple closes should be safe
	err = store.Close()
	assert.NoError(t, err)
}
