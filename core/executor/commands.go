package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spot-trainer/core/models"
	"spot-trainer/core/spec"
)

const defaultSSHPort = 22

// AccessOptions are the fixed connection options shared by every remote command
type AccessOptions struct {
	User           string
	IdentityFile   string
	ConnectTimeout time.Duration
	Port           int
	LocalRoot      string
	RemoteDir      string
	Excludes       []string
	Session        string
}

// AccessOptionsFromSpec collects the access options of a launch spec
func AccessOptionsFromSpec(s *spec.LaunchSpec) AccessOptions {
	return AccessOptions{
		User:           s.Access.User,
		IdentityFile:   s.Access.IdentityFile,
		ConnectTimeout: s.Access.ConnectTimeout.Std(),
		Port:           s.Access.Port,
		LocalRoot:      s.Sync.LocalRoot,
		RemoteDir:      s.Sync.RemoteDir,
		Excludes:       s.Sync.Exclude,
		Session:        s.Job.Session,
	}
}

// CommandBuilder derives ssh and rsync invocations for a host. It holds no
// state besides its options, so every method is a pure function of the host.
type CommandBuilder struct {
	opts AccessOptions
}

// NewCommandBuilder creates a builder, expanding a leading ~ in the identity file
func NewCommandBuilder(opts AccessOptions) *CommandBuilder {
	opts.IdentityFile = expandHome(opts.IdentityFile)
	if opts.LocalRoot == "" {
		opts.LocalRoot = "."
	}
	return &CommandBuilder{opts: opts}
}

// Options returns the options after expansion
func (b *CommandBuilder) Options() AccessOptions {
	return b.opts
}

// SSHOptions returns the ssh flags placed before the target
func (b *CommandBuilder) SSHOptions() []string {
	timeout := int(b.opts.ConnectTimeout.Round(time.Second).Seconds())

	args := []string{
		"-q",
		"-o", "StrictHostKeyChecking=no",
		"-o", "LogLevel=ERROR",
		"-o", fmt.Sprintf("ConnectTimeout=%d", timeout),
		"-i", b.opts.IdentityFile,
	}
	if b.opts.Port != 0 && b.opts.Port != defaultSSHPort {
		args = append(args, "-p", strconv.Itoa(b.opts.Port))
	}
	return args
}

// Target returns user@host
func (b *CommandBuilder) Target(host string) string {
	return b.opts.User + "@" + host
}

// SSHArgs returns the ssh argv (without the program name) running remote on host
func (b *CommandBuilder) SSHArgs(host string, remote ...string) []string {
	args := append(b.SSHOptions(), b.Target(host))
	return append(args, remote...)
}

// SSHCommand returns the interactive ssh command for host
func (b *CommandBuilder) SSHCommand(host string) string {
	return joinCommand("ssh", b.SSHArgs(host))
}

// RsyncArgs returns the rsync argv (without the program name) pushing the
// local root to the remote directory on host
func (b *CommandBuilder) RsyncArgs(host string) []string {
	source := b.opts.LocalRoot
	if !strings.HasSuffix(source, "/") {
		source += "/"
	}

	args := []string{"-av", "-e", joinCommand("ssh", b.SSHOptions()), source}
	for _, pattern := range b.opts.Excludes {
		args = append(args, "--exclude", pattern)
	}
	return append(args, b.Target(host)+":"+b.opts.RemoteDir)
}

// RsyncCommand returns the printable rsync command for host
func (b *CommandBuilder) RsyncCommand(host string) string {
	return joinCommand("rsync", b.RsyncArgs(host))
}

// AttachCommand returns the command re-attaching to the job session on host
func (b *CommandBuilder) AttachCommand(host string) string {
	return joinCommand("ssh", b.SSHArgs(host, "-t", "tmux", "attach-session", "-t", b.opts.Session))
}

// Build returns every printable command for host
func (b *CommandBuilder) Build(host string) models.RemoteAccessCommand {
	return models.RemoteAccessCommand{
		SSH:    b.SSHCommand(host),
		Rsync:  b.RsyncCommand(host),
		Attach: b.AttachCommand(host),
	}
}

func joinCommand(name string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, name)
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	return strings.Join(quoted, " ")
}

// shellQuote quotes s for a POSIX shell unless it only has safe characters.
// ~ is left bare so remote paths still expand on the instance.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool { return !isShellSafe(r) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("@%_+=:,./~-", r)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
