package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ackinacki-farmer/internal/accounts"
	"github.com/ackinacki-farmer/internal/gateway"
	"github.com/ackinacki-farmer/internal/logging"
	"github.com/ackinacki-farmer/internal/metrics"
	"github.com/ackinacki-farmer/internal/snapshot"
	"github.com/ackinacki-farmer/internal/task"
	"github.com/ackinacki-farmer/internal/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sequence runs the per-account work of one round.
type Sequence interface {
	Run(ctx context.Context, acct accounts.Account) task.Outcome
}

type Options struct {
	MaxConcurrency     int
	DefaultWaitSeconds int
	MaxWaitSeconds     int
	WaitPaddingSeconds int

	// Countdown waits between rounds; defaults to a live console countdown.
	Countdown func(ctx context.Context, seconds int) error
}

type Scheduler struct {
	seq      Sequence
	snapshot *snapshot.Manager
	metrics  *metrics.Collector
	opts     Options
	round    int
}

func New(seq Sequence, snap *snapshot.Manager, metricsCollector *metrics.Collector, opts Options) *Scheduler {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 25
	}
	if opts.DefaultWaitSeconds <= 0 {
		opts.DefaultWaitSeconds = 7200
	}
	if opts.MaxWaitSeconds <= 0 {
		opts.MaxWaitSeconds = 7200
	}
	if opts.Countdown == nil {
		opts.Countdown = func(ctx context.Context, seconds int) error {
			return Countdown(ctx, os.Stdout, seconds)
		}
	}

	return &Scheduler{
		seq:      seq,
		snapshot: snap,
		metrics:  metricsCollector,
		opts:     opts,
	}
}

// NextDelay is min(max(hints)+padding, maxWait) when any hint is positive,
// otherwise defaultWait.
func NextDelay(hints []int, padding, maxWait, defaultWait int) int {
	longest := 0
	for _, h := range hints {
		if h > longest {
			longest = h
		}
	}

	delay := defaultWait
	if longest > 0 {
		delay = longest + padding
	}
	if delay > maxWait {
		delay = maxWait
	}
	return delay
}

// RunForever runs rounds back to back until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context, accts []accounts.Account) error {
	for {
		outcomes := s.RunRound(ctx, accts)
		if err := ctx.Err(); err != nil {
			return err
		}

		hints := make([]int, len(outcomes))
		for i, o := range outcomes {
			hints[i] = o.WaitSeconds()
		}
		delay := NextDelay(hints, s.opts.WaitPaddingSeconds, s.opts.MaxWaitSeconds, s.opts.DefaultWaitSeconds)
		s.publish(outcomes, delay)

		logging.Print(nil, logging.KindCustom, "Waiting %s before the next round", formatDuration(delay))
		if err := s.opts.Countdown(ctx, delay); err != nil {
			return err
		}
	}
}

// RunRound runs the sequence for every account, at most MaxConcurrency at a
// time, and returns the outcomes in account order.
func (s *Scheduler) RunRound(ctx context.Context, accts []accounts.Account) []task.Outcome {
	s.round++
	start := time.Now()
	log.Infof("Starting round %d: %d accounts, concurrency=%d", s.round, len(accts), s.opts.MaxConcurrency)

	// Each goroutine writes only its own slot.
	outcomes := make([]task.Outcome, len(accts))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)

	for i, acct := range accts {
		i, acct := i, acct
		g.Go(func() error {
			outcomes[i] = s.seq.Run(ctx, acct)
			return nil
		})
	}
	g.Wait()

	log.Infof("Round %d complete in %v", s.round, time.Since(start).Round(time.Millisecond))
	return outcomes
}

func (s *Scheduler) publish(outcomes []task.Outcome, delay int) {
	statuses := make([]types.AccountStatus, len(outcomes))
	stats := types.Stats{
		Round:            s.round,
		Accounts:         len(outcomes),
		NextDelaySeconds: delay,
		NextRoundAt:      time.Now().Add(time.Duration(delay) * time.Second),
	}

	for i, o := range outcomes {
		statuses[i] = StatusOf(o)
		if statuses[i].Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		if i == 0 || o.StartedAt.Before(stats.RoundStarted) {
			stats.RoundStarted = o.StartedAt
		}
	}
	if !stats.RoundStarted.IsZero() {
		stats.RoundDurationMs = time.Since(stats.RoundStarted).Milliseconds()
	}

	s.metrics.RecordRound(float64(stats.RoundDurationMs)/1000.0, delay)
	if s.snapshot != nil {
		s.snapshot.Update(statuses, stats)
	}
}

// StatusOf flattens an outcome for the status snapshot.
func StatusOf(o task.Outcome) types.AccountStatus {
	st := types.AccountStatus{
		Index:          o.Account.Index,
		Account:        accounts.MaskToken(o.Account.Token),
		ProxyIP:        o.ProxyIP,
		Success:        o.Err == nil && o.FarmErr == nil,
		Boost:          o.Boost,
		TasksExecuted:  o.Tasks.Executed,
		TasksSkipped:   o.Tasks.Skipped,
		TasksFailed:    o.Tasks.Failed,
		RewardsClaimed: o.Rewards.Count,
		RewardsTotal:   o.Rewards.Total,
		WaitSeconds:    o.WaitSeconds(),
		FinishedAt:     o.FinishedAt,
	}

	switch {
	case o.Err != nil:
		st.Error = o.Err.Error()
	case o.FarmErr != nil:
		st.Error = o.FarmErr.Error()
	}
	if o.Farm != nil {
		st.FarmStatus = string(o.Farm.Status)
	}
	return st
}

// Countdown prints a once-per-second countdown on a single console line.
func Countdown(ctx context.Context, w io.Writer, seconds int) error {
	for ; seconds > 0; seconds-- {
		fmt.Fprintf(w, "\r[%s] [*] Waiting %d seconds to continue...\033[K", time.Now().Format(time.TimeOnly), seconds)
		if err := gateway.Sleep(ctx, time.Second); err != nil {
			fmt.Fprint(w, "\r\033[K")
			return err
		}
	}
	fmt.Fprint(w, "\r\033[K")
	return nil
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%dh %dm %ds", seconds/3600, (seconds%3600)/60, seconds%60)
}
