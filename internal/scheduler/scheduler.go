package scheduler

import (
	"context"
	"time"

	"sentrix/internal/logger"
)

// AlignedScheduler 在每个 Interval 边界（加 Offset）执行一次任务，直到 ctx 结束。
type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
	// sleep 等待 d 或 ctx 结束；返回 false 表示应退出。
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Start blocks until the scheduler's context is done.
func (s *AlignedScheduler) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("[scheduler] task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("[scheduler] invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("[scheduler] negative offset=%s, clamp to 0", s.Offset)
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}

	startAt := s.nowFn().UTC()
	logger.Infof("[scheduler] started interval=%s offset=%s run_immediately=%v at=%s",
		s.Interval, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately && s.ctx.Err() == nil {
		task()
	}

	for {
		if s.ctx.Err() != nil {
			logger.Infof("[scheduler] ctx done, exit")
			return
		}
		now := s.nowFn().UTC()
		_, wakeAt, wait := s.nextTimes(now)
		logger.Debugf("[scheduler] next run at %s (in %s) uptime=%s",
			wakeAt.Format(time.RFC3339), wait.Truncate(time.Second), now.Sub(startAt).Truncate(time.Second))
		if !s.sleep(s.ctx, wait) {
			logger.Infof("[scheduler] ctx done, exit")
			return
		}
		task()
	}
}

func (s *AlignedScheduler) nextTimes(now time.Time) (nextBoundary time.Time, wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	nextBoundary = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextBoundary.Add(s.Offset)
	wait = wakeAt.Sub(now)
	return nextBoundary, wakeAt, wait
}
