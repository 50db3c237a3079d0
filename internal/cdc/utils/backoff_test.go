package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffManager(t *testing.T) {
	t.Parallel()

	b := NewBackoffManager(time.Second, 5*time.Second)
	assert.Equal(t, time.Second, b.GetInterval())

	b.IncreaseInterval()
	assert.Equal(t, 2*time.Second, b.GetInterval())
	b.IncreaseInterval()
	b.IncreaseInterval()
	assert.Equal(t, 5*time.Second, b.GetInterval())

	b.ResetInterval()
	assert.Equal(t, time.Second, b.GetInterval())
}

func TestBackoffManager_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBackoffManager(0, 0)
	assert.Equal(t, time.Second, b.GetInterval())
	b.IncreaseInterval()
	assert.Equal(t, time.Second, b.GetInterval())
}

func TestBackoffManager_Wait(t *testing.T) {
	t.Parallel()

	b := NewBackoffManager(time.Millisecond, 10*time.Millisecond)
	assert.NoError(t, b.Wait(context.Background()))
	assert.Equal(t, 2*time.Millisecond, b.GetInterval())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewBackoffManager(time.Hour, time.Hour)
	assert.ErrorIs(t, slow.Wait(ctx), context.Canceled)
}
