package task

import (
	"context"
	"fmt"

	"github.com/ackinacki-farmer/internal/ackinacki"
)

type profileAPI interface {
	GetProfile(ctx context.Context) (*ackinacki.Profile, error)
	ConfirmAdult(ctx context.Context) (*ackinacki.Profile, error)
}

// fetchProfile returns the boost of the final profile response, confirming
// the age first when it is unset.
func fetchProfile(ctx context.Context, api profileAPI, l *stepLogger) (float64, error) {
	profile, err := api.GetProfile(ctx)
	if err != nil {
		return 0, err
	}

	if profile.NeedsAgeConfirmation() {
		l.warning("Account age is not confirmed, confirming...")
		profile, err = api.ConfirmAdult(ctx)
		if err != nil {
			return 0, err
		}
		l.success("Confirmed account is over 18")
	}

	return profile.Boost(), nil
}

// TaskTally counts the outcome of the popit task step.
type TaskTally struct {
	Executed int
	Skipped  int
	Failed   int
}

type tasksAPI interface {
	Popcoins(ctx context.Context) ([]ackinacki.Popcoin, error)
	Popits(ctx context.Context, popcoinID ackinacki.ID) ([]ackinacki.Popit, error)
	StartTask(ctx context.Context, taskID ackinacki.ID) error
}

// runTasks starts every pending task of the configured popcoin. Individual
// task failures are counted, not returned.
func (r *Runner) runTasks(ctx context.Context, api tasksAPI, l *stepLogger) (TaskTally, error) {
	var tally TaskTally

	l.info("Fetching popcoins...")
	popcoins, err := api.Popcoins(ctx)
	if err != nil {
		return tally, err
	}

	var coin *ackinacki.Popcoin
	for i := range popcoins {
		if popcoins[i].TokenSymbol == r.opts.PopcoinSymbol {
			coin = &popcoins[i]
			break
		}
	}
	if coin == nil {
		return tally, fmt.Errorf("%s popcoin not found", r.opts.PopcoinSymbol)
	}
	l.success("Found %s popcoin (ID: %s)", coin.TokenSymbol, coin.ID)

	popits, err := api.Popits(ctx, coin.ID)
	if err != nil {
		return tally, err
	}
	l.success("Found %d popits for %s", len(popits), coin.TokenSymbol)

	for _, popit := range popits {
		task := popit.PendingTask()
		if task == nil {
			l.warning("No task for popit ID: %s", popit.ID)
			tally.Skipped++
			continue
		}

		name := task.Name
		if name == "" {
			name = "Unnamed Task"
		}
		l.custom("Doing task %s | reward: %v", name, task.ConstReward)

		if err := api.StartTask(ctx, task.ID); err != nil {
			l.fail("Could not complete task %s: %v", name, err)
			tally.Failed++
		} else {
			l.success("Completed task: %s", name)
			tally.Executed++
		}

		if err := r.sleep(ctx, r.opts.TaskDelay); err != nil {
			return tally, err
		}
	}

	l.custom("%s tasks: %d done, %d skipped, %d failed", coin.TokenSymbol, tally.Executed, tally.Skipped, tally.Failed)
	return tally, nil
}

// RewardSweep is the result of the unclaimed rewards step.
type RewardSweep struct {
	Count int
	Total float64
}

type rewardsAPI interface {
	Unclaimed(ctx context.Context) ([]ackinacki.UnclaimedReward, error)
	ClaimAll(ctx context.Context) error
}

// sweepRewards claims every unclaimed reward with a single bulk call.
func sweepRewards(ctx context.Context, api rewardsAPI, l *stepLogger) (RewardSweep, error) {
	rewards, err := api.Unclaimed(ctx)
	if err != nil {
		return RewardSweep{}, err
	}

	if len(rewards) == 0 {
		l.info("No unclaimed rewards")
		return RewardSweep{}, nil
	}

	sweep := RewardSweep{Count: len(rewards)}
	for _, reward := range rewards {
		sweep.Total += reward.Rewards
	}
	l.warning("%d unclaimed rewards | %v boost", sweep.Count, sweep.Total)

	if err := api.ClaimAll(ctx); err != nil {
		return RewardSweep{}, err
	}

	l.success("Claimed all rewards: +%v boost", sweep.Total)
	return sweep, nil
}
