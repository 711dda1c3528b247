package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) Cleanup(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestRun_SweepsUntilCancelled(t *testing.T) {
	c := &countingCleaner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, c, 10*time.Millisecond, nil)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_KeepsGoingAfterError(t *testing.T) {
	c := &countingCleaner{err: errors.New("store down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, c, 10*time.Millisecond, nil)

	assert.Eventually(t, func() bool { return c.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRun_SweepsImmediately(t *testing.T) {
	c := &countingCleaner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Run(ctx, c, time.Hour, nil)
	assert.EqualValues(t, 1, c.calls.Load())
}
