package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DetachedJob is a remote process that outlives the connection starting it
type DetachedJob interface {
	Start(ctx context.Context, host, entrypoint string, env map[string]string) error
	IsAlive(ctx context.Context, host string) (bool, error)
	Stop(ctx context.Context, host string) error
	AttachCommand(host string) string
}

// TmuxSession runs the job in a named tmux session inside the remote work dir
type TmuxSession struct {
	log      logrus.FieldLogger
	remote   RemoteExecutor
	commands *CommandBuilder
}

// NewTmuxSession creates a tmux-backed job handle
func NewTmuxSession(log logrus.FieldLogger, remote RemoteExecutor, commands *CommandBuilder) *TmuxSession {
	return &TmuxSession{
		log:      log.WithField("component", "tmux-session"),
		remote:   remote,
		commands: commands,
	}
}

func (t *TmuxSession) name() string {
	return t.commands.Options().Session
}

// StartCommand returns the remote line creating the session. env is
// exported in front of the entrypoint in key order.
func (t *TmuxSession) StartCommand(entrypoint string, env map[string]string) string {
	inner := "cd " + shellQuote(t.commands.Options().RemoteDir) + " && " + envPrefix(env) + entrypoint
	return fmt.Sprintf("tmux new-session -d -s %s %s", shellQuote(t.name()), shellQuote(inner))
}

func envPrefix(env map[string]string) string {
	var b strings.Builder
	for _, k := range envKeys(env) {
		b.WriteString(k + "=" + shellQuote(env[k]) + " ")
	}
	return b.String()
}

func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Start launches entrypoint in a new session. Starting a second session with
// the same name fails at tmux level.
func (t *TmuxSession) Start(ctx context.Context, host, entrypoint string, env map[string]string) error {
	if _, err := t.remote.ExecuteCommand(ctx, host, t.StartCommand(entrypoint, env)); err != nil {
		return fmt.Errorf("starting session %s on %s: %w", t.name(), host, err)
	}

	t.log.WithFields(logrus.Fields{
		"host":       host,
		"session":    t.name(),
		"entrypoint": entrypoint,
		"env":        envKeys(env),
	}).Info("Started training session")
	return nil
}

// IsAlive reports whether the session still exists
func (t *TmuxSession) IsAlive(ctx context.Context, host string) (bool, error) {
	_, err := t.remote.ExecuteCommand(ctx, host, "tmux has-session -t "+shellQuote(t.name()))
	if err == nil {
		return true, nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("checking session %s on %s: %w", t.name(), host, err)
}

// Stop kills the session; a missing session is not an error
func (t *TmuxSession) Stop(ctx context.Context, host string) error {
	_, err := t.remote.ExecuteCommand(ctx, host, "tmux kill-session -t "+shellQuote(t.name()))
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("stopping session %s on %s: %w", t.name(), host, err)
		}
		t.log.WithField("host", host).Debug("Session already gone")
		return nil
	}

	t.log.WithFields(logrus.Fields{
		"host":    host,
		"session": t.name(),
	}).Info("Stopped training session")
	return nil
}

// AttachCommand implements DetachedJob
func (t *TmuxSession) AttachCommand(host string) string {
	return t.commands.AttachCommand(host)
}
