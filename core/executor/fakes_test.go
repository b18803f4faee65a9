package executor

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeRemote records commands and answers them from a script
type fakeRemote struct {
	mu       sync.Mutex
	commands []string
	hosts    []string
	respond  func(command string) (string, error)
}

func (f *fakeRemote) ExecuteCommand(_ context.Context, host, command string) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	f.hosts = append(f.hosts, host)
	f.mu.Unlock()

	if f.respond == nil {
		return "", nil
	}
	return f.respond(command)
}

// fakeRunner fails the first failures calls
type fakeRunner struct {
	mu       sync.Mutex
	failures int
	calls    [][]string
	err      error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string{name}, args...))
	if len(f.calls) <= f.failures {
		return []byte("ssh: connect to host port 22: Connection refused"), f.err
	}
	return []byte("sent 1024 bytes"), nil
}
