package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeoutGuard installs a remote watchdog that runs a stop action once the
// budget has elapsed. The watchdog never looks at the job: a job that ends
// early still has its instance stopped at the deadline.
type TimeoutGuard struct {
	log     logrus.FieldLogger
	remote  RemoteExecutor
	action  string
	logPath string
	now     func() time.Time
}

// NewTimeoutGuard creates a new timeout guard
func NewTimeoutGuard(log logrus.FieldLogger, remote RemoteExecutor, action, logPath string) *TimeoutGuard {
	return &TimeoutGuard{
		log:     log.WithField("component", "timeout-guard"),
		remote:  remote,
		action:  action,
		logPath: logPath,
		now:     time.Now,
	}
}

// WatchdogCommand returns the detached shell line that sleeps for budget and
// then runs action. setsid and the redirections detach it from the ssh session.
func WatchdogCommand(budget time.Duration, action, logPath string) string {
	secs := int64(math.Ceil(budget.Seconds()))
	inner := fmt.Sprintf("sleep %d; %s", secs, action)

	return fmt.Sprintf("setsid nohup bash -c %s > %s 2>&1 < /dev/null &",
		shellQuote(inner), shellQuote(logPath))
}

// Install starts the watchdog on host and returns the deadline it enforces
func (g *TimeoutGuard) Install(ctx context.Context, host string, budget time.Duration) (time.Time, error) {
	if budget <= 0 {
		return time.Time{}, fmt.Errorf("timeout budget must be positive, got %s", budget)
	}

	start := g.now()
	if _, err := g.remote.ExecuteCommand(ctx, host, WatchdogCommand(budget, g.action, g.logPath)); err != nil {
		return time.Time{}, fmt.Errorf("installing timeout guard on %s: %w", host, err)
	}

	deadline := start.Add(budget)
	g.log.WithFields(logrus.Fields{
		"host":     host,
		"budget":   budget.String(),
		"deadline": deadline.UTC().Format(time.RFC3339),
	}).Info("Timeout guard installed")

	return deadline, nil
}
