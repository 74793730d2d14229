package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/timezone"
)

// Policy decides what happens to the rest of the local day after a
// job's action fails.
type Policy int

const (
	// MarkFiredOnError marks the day done even when the action fails.
	// no same-day retry, which avoids hammering a failing upstream
	// once per tick for the rest of the day.
	MarkFiredOnError Policy = iota
	// RetryUntilSuccess leaves the day unmarked after a failure, the
	// job runs again on subsequent ticks until it succeeds.
	RetryUntilSuccess
)

// NoHourGate disables the local hour-of-day threshold.
const NoHourGate = -1

type Job struct {
	ID string
	// Zone names the calendar the job lives in. defaults to ET.
	Zone *time.Location
	// Hour blocks firing before this local hour of day. NoHourGate
	// (or any negative value) disables the gate.
	Hour   int
	Policy Policy
	Run    func(ctx context.Context) error
}

type jobState struct {
	job Job
	// the sole mechanism preventing a double fire within one local
	// calendar day. guarded by Scheduler.mu, Tick may be called from
	// more than one goroutine
	lastFiredDateKey string
}

// Scheduler drives daily jobs off a fixed-interval ticker. "has this
// fired today" is judged on the job's local calendar date, not on
// 24-hour utc buckets, so DST transitions neither skip nor double a
// day. guarantees are process local only.
type Scheduler struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	jobs []*jobState
}

func New(interval time.Duration) *Scheduler {
	return &Scheduler{
		interval: interval,
		now:      time.Now,
	}
}

func (s *Scheduler) Register(job Job) {
	if job.Zone == nil {
		job.Zone = timezone.Location
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &jobState{job: job})
}

// Start runs the tick loop until ctx is done. the first tick happens
// immediately rather than one interval in.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick evaluates every registered job once against the current instant.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	states := make([]*jobState, len(s.jobs))
	copy(states, s.jobs)
	s.mu.Unlock()

	for _, state := range states {
		s.tickJob(ctx, state, now)
	}
}

func (s *Scheduler) tickJob(ctx context.Context, state *jobState, now time.Time) {
	local := now.In(state.job.Zone)
	dateKey := local.Format("2006-01-02")

	// the day is claimed before running so overlapping ticks cannot
	// both fire. a RetryUntilSuccess failure releases the claim.
	s.mu.Lock()
	if state.lastFiredDateKey == dateKey {
		s.mu.Unlock()
		return
	}
	if state.job.Hour >= 0 && local.Hour() < state.job.Hour {
		s.mu.Unlock()
		return
	}
	state.lastFiredDateKey = dateKey
	s.mu.Unlock()

	err := state.job.Run(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "scheduled job failed", "job", state.job.ID, "err", err)
		if state.job.Policy == RetryUntilSuccess {
			s.mu.Lock()
			if state.lastFiredDateKey == dateKey {
				state.lastFiredDateKey = ""
			}
			s.mu.Unlock()
		}
	}
}

// nextMidnight is zone aware: across a DST transition the gap to
// midnight is not a fixed 24h offset.
func nextMidnight(now time.Time, zone *time.Location) time.Time {
	local := now.In(zone)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, zone)
}

// StartMidnightJob runs the action just after every local midnight in
// zone, recomputing the delay each cycle so it self-corrects for DST
// without drifting. failures are reported and the job keeps going.
func (s *Scheduler) StartMidnightJob(ctx context.Context, id string, zone *time.Location, run func(ctx context.Context) error) {
	if zone == nil {
		zone = timezone.Location
	}
	go func() {
		for {
			target := nextMidnight(s.now(), zone)
			timer := time.NewTimer(target.Sub(s.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			err := run(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "midnight job failed", "job", id, "err", err)
			}
		}
	}()
}
