package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// RemoteExecutor runs a shell command on a host
type RemoteExecutor interface {
	ExecuteCommand(ctx context.Context, host, command string) (string, error)
}

// ExitError is returned when the remote command ran and exited non-zero
type ExitError struct {
	Command string
	Status  int
	Output  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command %q exited with status %d", e.Command, e.Status)
}

// SSHClient handles SSH connections to remote nodes
type SSHClient struct {
	config *ssh.ClientConfig
	port   int
}

// NewSSHClient creates a new SSH client authenticating with a PEM private key
func NewSSHClient(privateKey []byte, user string, timeout time.Duration, port int) (*SSHClient, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	if port == 0 {
		port = defaultSSHPort
	}

	return &SSHClient{
		config: &ssh.ClientConfig{
			User: user,
			Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
			// Instances are fresh on every launch, matching StrictHostKeyChecking=no
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         timeout,
		},
		port: port,
	}, nil
}

// NewSSHClientFromOptions reads the identity file named in opts
func NewSSHClientFromOptions(opts AccessOptions) (*SSHClient, error) {
	key, err := os.ReadFile(expandHome(opts.IdentityFile))
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	return NewSSHClient(key, opts.User, opts.ConnectTimeout, opts.Port)
}

func (sc *SSHClient) dial(ctx context.Context, host string) (*ssh.Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(sc.port))

	dialer := net.Dialer{Timeout: sc.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sc.config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return ssh.NewClient(c, chans, reqs), nil
}

// ExecuteCommand executes a command on a remote node via SSH and returns its
// combined output. A non-zero exit is reported as *ExitError.
func (sc *SSHClient) ExecuteCommand(ctx context.Context, host, command string) (string, error) {
	client, err := sc.dial(ctx, host)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening ssh session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = client.Close()
		return "", ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return output.String(), &ExitError{
				Command: command,
				Status:  exitErr.ExitStatus(),
				Output:  output.String(),
			}
		}
		return output.String(), fmt.Errorf("running %q: %w", command, err)
	}

	return output.String(), nil
}

// TestConnection tests SSH connection to a node
func (sc *SSHClient) TestConnection(ctx context.Context, host string) error {
	_, err := sc.ExecuteCommand(ctx, host, "true")
	return err
}
