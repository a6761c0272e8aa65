package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}
	return 2, p.err
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler(&countingPurger{}, "every now and then", time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_RunsPurge(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := &countingPurger{}
	s, err := NewScheduler(p, "@every 1s", time.Second, zap.New(core))
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("expired revocations purged").Len() > 0
	}, time.Second, 20*time.Millisecond)
}

func TestScheduler_PurgeErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &countingPurger{err: errors.New("db down")}
	s, err := NewScheduler(p, "", time.Second, zap.New(core))
	require.NoError(t, err)

	s.purge(p)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("revocation purge failed").Len())
}
