package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter returns a teardown that counts its invocations.
func counter() (Teardown, *atomic.Int32) {
	var n atomic.Int32
	return func(context.Context) error {
		n.Add(1)
		return nil
	}, &n
}

func TestRegisterReturnsUniqueUUIDs(t *testing.T) {
	r := New()
	seen := make(map[string]bool)
	for range 50 {
		id := r.Register(nil)
		_, err := uuid.Parse(id)
		require.NoError(t, err, "id %q should be a UUID", id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 50, r.Len())
}

func TestUnregisterInvokesTeardownOnce(t *testing.T) {
	ctx := context.Background()
	r := New()
	td, n := counter()
	id := r.Register(td)

	for range 5 {
		require.NoError(t, r.Unregister(ctx, id))
	}

	assert.Equal(t, int32(1), n.Load())
	assert.False(t, r.Has(id))
	assert.Zero(t, r.Len())
}

func TestUnregisterUnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	r := New()
	td, n := counter()
	r.Register(td)

	assert.NoError(t, r.Unregister(ctx, "never-registered"))
	assert.NoError(t, r.Unregister(ctx, ""))
	assert.Zero(t, n.Load())
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterScenario(t *testing.T) {
	ctx := context.Background()
	r := New()
	t1, n1 := counter()
	t2, n2 := counter()

	a := r.Register(t1)
	b := r.Register(t2)
	require.NotEqual(t, a, b)

	require.NoError(t, r.Unregister(ctx, a))
	assert.Equal(t, int32(1), n1.Load())
	assert.Zero(t, n2.Load())

	require.NoError(t, r.Unregister(ctx, a))
	assert.Equal(t, int32(1), n1.Load())

	require.NoError(t, r.UnregisterAll(ctx))
	assert.Equal(t, int32(1), n1.Load())
	assert.Equal(t, int32(1), n2.Load())
	assert.Zero(t, r.Len())
}

func TestUnregisterAllInvokesEachOnce(t *testing.T) {
	ctx := context.Background()
	r := New()

	const n = 25
	counts := make([]*atomic.Int32, n)
	for i := range n {
		td, c := counter()
		counts[i] = c
		r.Register(td)
	}

	require.NoError(t, r.UnregisterAll(ctx))
	require.NoError(t, r.UnregisterAll(ctx))

	for i, c := range counts {
		assert.Equal(t, int32(1), c.Load(), "teardown %d", i)
	}
	assert.Zero(t, r.Len())
}

func TestUnregisterAllJoinsErrors(t *testing.T) {
	ctx := context.Background()
	r := New()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ok, okCount := counter()

	r.Register(func(context.Context) error { return errA })
	r.Register(ok)
	r.Register(func(context.Context) error { return errB })

	err := r.UnregisterAll(ctx)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, int32(1), okCount.Load())
	assert.Zero(t, r.Len())
}

func TestUnregisterReturnsTeardownError(t *testing.T) {
	ctx := context.Background()
	r := New()
	boom := errors.New("source gone")
	id := r.Register(func(context.Context) error { return boom })

	assert.ErrorIs(t, r.Unregister(ctx, id), boom)
	// The mapping is gone even though teardown failed.
	assert.NoError(t, r.Unregister(ctx, id))
}

func TestConcurrentUnregisterInvokesOnce(t *testing.T) {
	ctx := context.Background()
	r := New()
	td, n := counter()
	id := r.Register(td)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Unregister(ctx, id)
		}()
		go func() {
			defer wg.Done()
			_ = r.UnregisterAll(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), n.Load())
}

func TestTeardownReceivesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "owner")
	r := New()

	var got any
	id := r.Register(func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})
	require.NoError(t, r.Unregister(ctx, id))
	assert.Equal(t, "owner", got)
}
