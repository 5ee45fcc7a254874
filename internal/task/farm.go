package task

import (
	"context"
	"fmt"
	"time"

	"github.com/ackinacki-farmer/internal/ackinacki"
)

// FarmState is the farm phase inferred from a farm status response.
type FarmState int

const (
	StateNoFarm    FarmState = iota // reward == null
	StateLocked                     // start_at in the future
	StateStartable                  // start_at passed
	StateWaiting                    // claim_at in the future
	StateClaimable                  // claim_at passed
)

func (s FarmState) String() string {
	switch s {
	case StateNoFarm:
		return "no_farm"
	case StateLocked:
		return "locked"
	case StateStartable:
		return "startable"
	case StateWaiting:
		return "waiting"
	case StateClaimable:
		return "claimable"
	default:
		return fmt.Sprintf("FarmState(%d)", int(s))
	}
}

// Classify maps a farm response to its state and, for locked and waiting
// farms, the deadline. start_at takes precedence over claim_at.
func Classify(f *ackinacki.Farm, now time.Time) (FarmState, time.Time, error) {
	if f.Reward == nil {
		return StateNoFarm, time.Time{}, nil
	}

	if start := f.Reward.StartAt(); start != nil {
		if now.Before(start.Time) {
			return StateLocked, start.Time, nil
		}
		return StateStartable, time.Time{}, nil
	}

	if f.Reward.ClaimAt == nil {
		return 0, time.Time{}, fmt.Errorf("farm reward has neither start_at nor claim_at")
	}
	if now.Before(f.Reward.ClaimAt.Time) {
		return StateWaiting, f.Reward.ClaimAt.Time, nil
	}
	return StateClaimable, time.Time{}, nil
}

// SecondsUntil is the whole number of seconds from now to t, never negative.
func SecondsUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// FarmStatus is the reported outcome of farm advancement.
type FarmStatus string

const (
	FarmStarted             FarmStatus = "started"
	FarmLocked              FarmStatus = "locked"
	FarmWaiting             FarmStatus = "waiting"
	FarmClaimed             FarmStatus = "claimed"
	FarmClaimedAndRestarted FarmStatus = "claimed_and_restarted"

	// Observed by a read-only follow-up check, acted on next round.
	FarmIdle      FarmStatus = "idle"
	FarmStartable FarmStatus = "startable"
	FarmClaimable FarmStatus = "claimable"
)

type FarmResult struct {
	Status      FarmStatus
	Until       time.Time
	WaitSeconds int
	Reward      float64

	// Follow is the single re-check made after a start.
	Follow *FarmResult
}

// LongestWait is the largest countdown in r and its follow-up.
func (r *FarmResult) LongestWait() int {
	if r == nil {
		return 0
	}
	wait := r.WaitSeconds
	if f := r.Follow.LongestWait(); f > wait {
		wait = f
	}
	return wait
}

type farmAPI interface {
	FarmStatus(ctx context.Context) (*ackinacki.Farm, error)
	StartFarm(ctx context.Context) error
	ClaimTask(ctx context.Context, taskID ackinacki.ID) error
}

// advanceFarm queries the farm once and takes at most one claim and one
// start action. A start is followed by one read-only re-check.
func (r *Runner) advanceFarm(ctx context.Context, api farmAPI, l *stepLogger) (*FarmResult, error) {
	farm, err := api.FarmStatus(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	state, until, err := Classify(farm, now)
	if err != nil {
		return nil, fmt.Errorf("get farm status: %w", err)
	}

	var result *FarmResult
	switch state {
	case StateNoFarm, StateStartable:
		if state == StateNoFarm {
			l.info("No active farm, starting a new one...")
		} else {
			l.info("Farm unlocked, starting a new one...")
		}
		if err := api.StartFarm(ctx); err != nil {
			return nil, err
		}
		l.success("Farm started")
		result = &FarmResult{Status: FarmStarted}

	case StateLocked:
		result = countdown(FarmLocked, until, now)
		l.warning("Next farm unlocks in %s", formatSeconds(result.WaitSeconds))
		return result, nil

	case StateWaiting:
		result = countdown(FarmWaiting, until, now)
		l.warning("Farm not claimable yet, %s left", formatSeconds(result.WaitSeconds))
		return result, nil

	case StateClaimable:
		l.info("Farm reward is claimable")
		if err := api.ClaimTask(ctx, farm.ID); err != nil {
			return nil, err
		}
		reward := farm.Reward.Reward
		l.success("Claimed %v boost from farm", reward)

		l.info("Starting a new farm...")
		if err := api.StartFarm(ctx); err != nil {
			l.fail("Could not start new farm: %v", err)
			return &FarmResult{Status: FarmClaimed, Reward: reward}, nil
		}
		l.success("New farm started")
		result = &FarmResult{Status: FarmClaimedAndRestarted, Reward: reward}
	}

	follow, err := r.inspectFarm(ctx, api)
	if err != nil {
		l.fail("Farm re-check failed: %v", err)
	} else {
		result.Follow = follow
	}
	return result, nil
}

// inspectFarm reports the farm state without acting on it.
func (r *Runner) inspectFarm(ctx context.Context, api farmAPI) (*FarmResult, error) {
	farm, err := api.FarmStatus(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	state, until, err := Classify(farm, now)
	if err != nil {
		return nil, fmt.Errorf("get farm status: %w", err)
	}

	switch state {
	case StateLocked:
		return countdown(FarmLocked, until, now), nil
	case StateWaiting:
		return countdown(FarmWaiting, until, now), nil
	case StateStartable:
		return &FarmResult{Status: FarmStartable}, nil
	case StateClaimable:
		return &FarmResult{Status: FarmClaimable, Reward: farm.Reward.Reward}, nil
	default:
		return &FarmResult{Status: FarmIdle}, nil
	}
}

func countdown(status FarmStatus, until, now time.Time) *FarmResult {
	return &FarmResult{
		Status:      status,
		Until:       until,
		WaitSeconds: SecondsUntil(until, now),
	}
}

func formatSeconds(total int) string {
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}
