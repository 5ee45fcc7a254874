package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ackinacki-farmer/internal/accounts"
	"github.com/ackinacki-farmer/internal/ackinacki"
	"github.com/ackinacki-farmer/internal/gateway"
	"github.com/ackinacki-farmer/internal/logging"
	"github.com/ackinacki-farmer/internal/metrics"
	"github.com/ackinacki-farmer/internal/proxy"
	log "github.com/sirupsen/logrus"
)

const noProxyLabel = "no proxy"

type Options struct {
	PopcoinSymbol string
	TaskDelay     time.Duration
	VerifyIP      bool

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Runner executes the per-account task sequence.
type Runner struct {
	client   *ackinacki.Client
	resolver *proxy.Resolver
	errorLog *logging.ErrorLog
	metrics  *metrics.Collector
	opts     Options
}

func NewRunner(client *ackinacki.Client, resolver *proxy.Resolver, errorLog *logging.ErrorLog, metricsCollector *metrics.Collector, opts Options) *Runner {
	if opts.PopcoinSymbol == "" {
		opts.PopcoinSymbol = "ADS"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = gateway.Sleep
	}

	return &Runner{
		client:   client,
		resolver: resolver,
		errorLog: errorLog,
		metrics:  metricsCollector,
		opts:     opts,
	}
}

// Outcome is everything one account sequence produced.
type Outcome struct {
	Account accounts.Account
	ProxyIP string

	Boost      float64
	Tasks      TaskTally
	TasksErr   error
	Rewards    RewardSweep
	RewardsErr error
	Farm       *FarmResult
	FarmErr    error

	// Err is set when the sequence was aborted.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// WaitSeconds is the account's hint for the next useful action.
func (o Outcome) WaitSeconds() int {
	return o.Farm.LongestWait()
}

// Run executes the sequence for acct. It never panics; all failures end up
// in the returned Outcome.
func (r *Runner) Run(ctx context.Context, acct accounts.Account) (out Outcome) {
	out = Outcome{Account: acct, ProxyIP: noProxyLabel}

	l := &stepLogger{
		entry:    log.WithField("account", acct.Index+1),
		errorLog: r.errorLog,
		account:  acct.Label(),
		proxy:    "direct",
	}

	defer func() {
		if p := recover(); p != nil {
			out.Err = fmt.Errorf("unexpected error: %v", p)
			l.fail("%v", out.Err)
		}
		out.FinishedAt = r.now()
		r.metrics.AccountFinished()
		r.metrics.RecordAccountRun(out.Err == nil)
	}()
	r.metrics.AccountStarted()
	out.StartedAt = r.now()

	var route gateway.Route
	handle := r.resolver.Resolve(acct.Index)
	if handle != nil {
		route = handle
		l.proxy = handle.String()
	}
	l.entry = l.entry.WithField("proxy", l.proxy)

	if handle != nil && r.opts.VerifyIP {
		ip, err := r.resolver.VerifyEgressIP(ctx, handle)
		if err != nil {
			l.fail("Could not check proxy: %v", err)
		} else {
			out.ProxyIP = ip
		}
	}
	l.info("========== Account %d | IP: %s ==========", acct.Index+1, out.ProxyIP)

	sess := r.client.Session(acct.Token, route, acct.Label())

	boost, err := fetchProfile(ctx, sess, l)
	if err != nil {
		out.Err = err
		l.failRequest("Could not fetch account info", err)
		return out
	}
	out.Boost = boost
	l.custom("Boost: %v", boost)

	l.info("Running %s tasks...", r.opts.PopcoinSymbol)
	out.Tasks, out.TasksErr = r.runTasks(ctx, sess, l)
	r.metrics.RecordTasks(out.Tasks.Executed, out.Tasks.Skipped, out.Tasks.Failed)
	if out.TasksErr != nil {
		l.failRequest("Task step failed", out.TasksErr)
	} else {
		l.success("Tasks finished")
	}

	l.info("Checking unclaimed rewards...")
	out.Rewards, out.RewardsErr = sweepRewards(ctx, sess, l)
	if out.RewardsErr != nil {
		l.failRequest("Could not claim rewards", out.RewardsErr)
	} else if out.Rewards.Count > 0 {
		r.metrics.RecordBoostClaimed(out.Rewards.Total)
		l.custom("Claimed %v boost from %d rewards", out.Rewards.Total, out.Rewards.Count)
	}

	l.info("Checking farm status...")
	out.Farm, out.FarmErr = r.advanceFarm(ctx, sess, l)
	if out.FarmErr != nil {
		l.failRequest("Farm check failed", out.FarmErr)
		return out
	}
	r.reportFarm(out.Farm, l)

	return out
}

func (r *Runner) reportFarm(res *FarmResult, l *stepLogger) {
	for ; res != nil; res = res.Follow {
		r.metrics.RecordFarmStatus(string(res.Status))

		switch res.Status {
		case FarmWaiting:
			l.custom("Next farm claim at: %s", res.Until.Local().Format("15:04:05 02-01-2006"))
		case FarmLocked:
			l.custom("Farm unlocks at: %s", res.Until.Local().Format("15:04:05 02-01-2006"))
		case FarmClaimed:
			r.metrics.RecordBoostClaimed(res.Reward)
			l.success("Farm claimed")
		case FarmClaimedAndRestarted:
			r.metrics.RecordBoostClaimed(res.Reward)
			l.success("Farm claimed and restarted")
		case FarmStarted:
			l.info("Farm started, checking again")
		default:
			l.warning("Farm is %s, handling it next round", res.Status)
		}
	}
}

func (r *Runner) now() time.Time { return r.opts.Now() }

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	return r.opts.Sleep(ctx, d)
}

// stepLogger writes console lines for one account and mirrors failures to
// the error log.
type stepLogger struct {
	entry    *log.Entry
	errorLog *logging.ErrorLog
	account  string
	proxy    string
}

func (l *stepLogger) info(format string, args ...interface{}) {
	logging.Print(l.entry, logging.KindInfo, format, args...)
}

func (l *stepLogger) success(format string, args ...interface{}) {
	logging.Print(l.entry, logging.KindSuccess, format, args...)
}

func (l *stepLogger) warning(format string, args ...interface{}) {
	logging.Print(l.entry, logging.KindWarning, format, args...)
}

func (l *stepLogger) custom(format string, args ...interface{}) {
	logging.Print(l.entry, logging.KindCustom, format, args...)
}

func (l *stepLogger) fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.Print(l.entry, logging.KindError, "%s", msg)
	l.errorLog.Append(msg, l.account, l.proxy)
}

// failRequest logs err and, for remote failures, the error body.
func (l *stepLogger) failRequest(what string, err error) {
	l.fail("%s: %v", what, err)

	var reqErr *ackinacki.RequestError
	if errors.As(err, &reqErr) && len(reqErr.Data) > 0 {
		l.fail("Error details: %s", reqErr.Data)
	}
}
