package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTmuxSession_Start(t *testing.T) {
	remote := &fakeRemote{}
	s := NewTmuxSession(quietLogger(), remote, NewCommandBuilder(testAccessOptions()))

	require.NoError(t, s.Start(context.Background(), testHost, "bash aws_train.sh", nil))
	assert.Equal(t, []string{"tmux new-session -d -s dlad 'cd ~/code/ && bash aws_train.sh'"}, remote.commands)
}

func TestTmuxSession_StartCommandEnv(t *testing.T) {
	s := NewTmuxSession(quietLogger(), &fakeRemote{}, NewCommandBuilder(testAccessOptions()))

	got := s.StartCommand("bash aws_train.sh", map[string]string{
		"WANDB_API_KEY":    "0123abcd",
		"SPOT_TRAINER_RUN": "G7_1016-0930_0123456789",
	})
	assert.Equal(t, "tmux new-session -d -s dlad 'cd ~/code/ && SPOT_TRAINER_RUN=G7_1016-0930_0123456789 WANDB_API_KEY=0123abcd bash aws_train.sh'", got)
}

func TestTmuxSession_StartDuplicate(t *testing.T) {
	remote := &fakeRemote{respond: func(string) (string, error) {
		return "duplicate session: dlad", &ExitError{Status: 1}
	}}
	s := NewTmuxSession(quietLogger(), remote, NewCommandBuilder(testAccessOptions()))

	err := s.Start(context.Background(), testHost, "bash aws_train.sh", nil)
	var exitErr *ExitError
	assert.ErrorAs(t, err, &exitErr)
}

func TestTmuxSession_IsAlive(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    bool
		wantErr bool
	}{
		{name: "running", want: true},
		{name: "no session", err: &ExitError{Status: 1}},
		{name: "unreachable", err: errors.New("dial tcp: i/o timeout"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{respond: func(cmd string) (string, error) {
				require.True(t, strings.HasPrefix(cmd, "tmux has-session -t dlad"))
				return "", tt.err
			}}
			s := NewTmuxSession(quietLogger(), remote, NewCommandBuilder(testAccessOptions()))

			alive, err := s.IsAlive(context.Background(), testHost)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, alive)
		})
	}
}

func TestTmuxSession_Stop(t *testing.T) {
	remote := &fakeRemote{respond: func(string) (string, error) {
		return "can't find session: dlad", &ExitError{Status: 1}
	}}
	s := NewTmuxSession(quietLogger(), remote, NewCommandBuilder(testAccessOptions()))

	require.NoError(t, s.Stop(context.Background(), testHost))
	assert.Equal(t, []string{"tmux kill-session -t dlad"}, remote.commands)

	remote.respond = func(string) (string, error) { return "", errors.New("connection refused") }
	assert.Error(t, s.Stop(context.Background(), testHost))
}

func TestTmuxSession_AttachCommand(t *testing.T) {
	b := NewCommandBuilder(testAccessOptions())
	s := NewTmuxSession(quietLogger(), &fakeRemote{}, b)

	assert.Equal(t, b.Build(testHost).Attach, s.AttachCommand(testHost))
}
