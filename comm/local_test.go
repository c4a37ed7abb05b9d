package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepmet/stepmet/errs"
)

// runGroup runs fn concurrently on every member and returns the per-rank
// errors.
func runGroup(t *testing.T, comms []Communicator, fn func(c Communicator) error) []error {
	t.Helper()

	out := make([]error, len(comms))
	var wg sync.WaitGroup
	for r, c := range comms {
		r, c := r, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[r] = fn(c)
		}()
	}
	wg.Wait()

	return out
}

func TestLocalGroupIdentity(t *testing.T) {
	comms := NewLocalGroup(3)
	require.Len(t, comms, 3)
	for r, c := range comms {
		assert.Equal(t, r, c.Rank())
		assert.Equal(t, 3, c.Size())
	}
}

// TestBarrier verifies all members pass the barrier together, repeatedly.
func TestBarrier(t *testing.T) {
	comms := NewLocalGroup(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		for _, err := range runGroup(t, comms, func(c Communicator) error {
			return c.Barrier(ctx)
		}) {
			require.NoError(t, err)
		}
	}
}

// TestAllreduceFloat64 verifies sum, min and max across contributions.
func TestAllreduceFloat64(t *testing.T) {
	comms := NewLocalGroup(4)
	ctx := context.Background()

	tests := []struct {
		op   Op
		want float64
	}{
		{OpSum, 0 + 1 + 2 + 3},
		{OpMin, 0},
		{OpMax, 3},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			results := make([]float64, 4)
			for _, err := range runGroup(t, comms, func(c Communicator) error {
				v, err := c.AllreduceFloat64(ctx, float64(c.Rank()), tt.op)
				results[c.Rank()] = v
				return err
			}) {
				require.NoError(t, err)
			}
			for _, v := range results {
				assert.Equal(t, tt.want, v)
			}
		})
	}
}

// TestAllreduceUint64 verifies the integer reduction paths.
func TestAllreduceUint64(t *testing.T) {
	comms := NewLocalGroup(3)
	ctx := context.Background()

	results := make([]uint64, 3)
	for _, err := range runGroup(t, comms, func(c Communicator) error {
		v, err := c.AllreduceUint64(ctx, uint64(c.Rank()+10), OpSum)
		results[c.Rank()] = v
		return err
	}) {
		require.NoError(t, err)
	}
	for _, v := range results {
		assert.Equal(t, uint64(10+11+12), v)
	}
}

// TestSingleMemberGroup verifies collectives are immediate with one worker.
func TestSingleMemberGroup(t *testing.T) {
	comms := NewLocalGroup(1)
	ctx := context.Background()

	require.NoError(t, comms[0].Barrier(ctx))
	v, err := comms[0].AllreduceFloat64(ctx, 2.5, OpSum)
	require.NoError(t, err)
	require.Equal(t, 2.5, v)
}

// TestAbortReleasesPeers verifies Abort wakes members blocked in a collective
// and poisons future calls.
func TestAbortReleasesPeers(t *testing.T) {
	comms := NewLocalGroup(2)
	ctx := context.Background()
	cause := errors.New("disk on fire")

	done := make(chan error, 1)
	go func() {
		done <- comms[0].Barrier(ctx)
	}()

	// Let rank 0 block in the barrier before rank 1 aborts.
	time.Sleep(20 * time.Millisecond)
	comms[1].Abort(cause)

	select {
	case err := <-done:
		require.ErrorIs(t, err, errs.ErrGroupAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("abort did not release the blocked member")
	}

	// The group stays failed.
	require.ErrorIs(t, comms[1].Barrier(ctx), errs.ErrGroupAborted)
}

// TestCollectiveMismatch verifies members inside different collectives fail
// the group instead of deadlocking or reducing garbage.
func TestCollectiveMismatch(t *testing.T) {
	comms := NewLocalGroup(2)
	ctx := context.Background()

	results := runGroup(t, comms, func(c Communicator) error {
		if c.Rank() == 0 {
			return c.Barrier(ctx)
		}
		_, err := c.AllreduceFloat64(ctx, 1, OpSum)
		return err
	})
	for _, err := range results {
		require.ErrorIs(t, err, errs.ErrGroupAborted)
	}
}

// TestContextCancellation verifies a canceled waiter poisons the group so
// peers are not left waiting for its contribution.
func TestContextCancellation(t *testing.T) {
	comms := NewLocalGroup(2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- comms[0].Barrier(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not release the blocked member")
	}

	require.ErrorIs(t, comms[1].Barrier(context.Background()), errs.ErrGroupAborted)
}
