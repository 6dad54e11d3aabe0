package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/worker"
)

func TestParseTimeOfDay(t *testing.T) {
	at, err := worker.ParseTimeOfDay("23:00")
	require.NoError(t, err)
	assert.Equal(t, worker.TimeOfDay{Hour: 23, Minute: 0}, at)
	assert.Equal(t, "23:00", at.String())

	for _, bad := range []string{"", "24:00", "7pm", "12:60"} {
		_, err := worker.ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestNextFire(t *testing.T) {
	loc := time.FixedZone("JST", 9*3600)
	at := worker.TimeOfDay{Hour: 23, Minute: 0}
	day := func(d, h, m, s int) time.Time { return time.Date(2026, 10, d, h, m, s, 0, loc) }

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"earlier same day", day(19, 8, 0, 0), day(19, 23, 0, 0)},
		{"exactly at the minute", day(19, 23, 0, 0), day(19, 23, 0, 0)},
		{"inside the minute fires now", day(19, 23, 0, 40), day(19, 23, 0, 40)},
		{"after the minute rolls to tomorrow", day(19, 23, 1, 0), day(20, 23, 0, 0)},
		{"month rollover", day(31, 23, 30, 0), time.Date(2026, 11, 1, 23, 0, 0, 0, loc)},
		{"now in another zone", time.Date(2026, 10, 19, 13, 59, 0, 0, time.UTC), day(19, 23, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := worker.NextFire(tt.now, at, loc)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestMemoryFireGuard(t *testing.T) {
	g := worker.NewMemoryFireGuard()
	ctx := context.Background()

	ok, _ := g.Acquire(ctx, "2026-10-19")
	assert.True(t, ok)
	ok, _ = g.Acquire(ctx, "2026-10-19")
	assert.False(t, ok)
	ok, _ = g.Acquire(ctx, "2026-10-20")
	assert.True(t, ok)
}

func TestRedisFireGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	// Two guards on one Redis behave like two processes.
	a := worker.NewRedisFireGuard(rdb)
	b := worker.NewRedisFireGuard(rdb)

	ok, err := a.Acquire(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("adpromo:fired:2026-10-19"))
	assert.Greater(t, mr.TTL("adpromo:fired:2026-10-19"), 24*time.Hour)

	mr.Close()
	_, err = a.Acquire(ctx, "2026-10-20")
	assert.Error(t, err)
}

type countingPromoter struct {
	calls atomic.Int32
	fired chan struct{}
	err   error
}

func (p *countingPromoter) PromoteNext(context.Context) (*domain.Entry, error) {
	p.calls.Add(1)
	select {
	case p.fired <- struct{}{}:
	default:
	}
	if p.err != nil {
		return nil, p.err
	}
	return &domain.Entry{Title: "a"}, nil
}

func TestDailyScheduler_FiresOnceAtConfiguredTime(t *testing.T) {
	loc := time.UTC
	at := worker.TimeOfDay{Hour: 23, Minute: 0}
	// The fake clock sits just before the trigger; the timer waits the real remainder.
	fakeNow := time.Date(2026, 10, 19, 22, 59, 59, 950_000_000, loc)

	p := &countingPromoter{fired: make(chan struct{}, 1)}
	s := worker.NewDailyScheduler(p, at, loc, nil, zap.NewNop()).
		WithClock(func() time.Time { return fakeNow })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-p.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not fire")
	}

	// The next fire is a day away on the fake clock, so no second call arrives.
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), p.calls.Load())
}

func TestDailyScheduler_GuardBlocksSecondProcess(t *testing.T) {
	loc := time.UTC
	at := worker.TimeOfDay{Hour: 23, Minute: 0}
	fakeNow := time.Date(2026, 10, 19, 23, 0, 10, 0, loc)

	guard := worker.NewMemoryFireGuard()
	_, _ = guard.Acquire(context.Background(), "2026-10-19")

	p := &countingPromoter{fired: make(chan struct{}, 1), err: errors.New("unused")}
	s := worker.NewDailyScheduler(p, at, loc, guard, zap.NewNop()).
		WithClock(func() time.Time { return fakeNow })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, int32(0), p.calls.Load())
}
