package queueutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushEvictsOldestAtCapacity(t *testing.T) {
	q := NewNonceQueue(3)
	q.Push("a")
	q.Push("b")
	q.Push("c")
	q.Push("d")

	require.Equal(t, 3, q.Len())
	require.False(t, q.Contains("a"))
	require.True(t, q.Contains("b"))
	require.True(t, q.Contains("d"))
}

func TestRemoveMakesNonceSingleUse(t *testing.T) {
	q := NewNonceQueue(10)
	q.Push("n1")
	require.True(t, q.Contains("n1"))

	q.Remove("n1")
	require.False(t, q.Contains("n1"))

	// Removing an absent nonce is a no-op.
	q.Remove("n1")
	require.Equal(t, 0, q.Len())
}

func TestCapacityHundred(t *testing.T) {
	q := NewNonceQueue(100)
	for i := 0; i < 150; i++ {
		q.Push(fmt.Sprintf("nonce-%d", i))
	}
	require.Equal(t, 100, q.Len())
	require.False(t, q.Contains("nonce-49"))
	require.True(t, q.Contains("nonce-50"))
	require.True(t, q.Contains("nonce-149"))
}
