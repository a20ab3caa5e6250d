package adapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"presenced/internal/domain"
)

// neighbourStates are the `ip neigh` states that count as present
var neighbourStates = map[string]bool{
	"REACHABLE": true,
	"STALE":     true,
	"DELAY":     true,
}

// SSHNeighborConfig holds router access for the neighbour-table source
type SSHNeighborConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	Passphrase     string
	Command        string
	Timeout        time.Duration
}

// SSHNeighborSource reads a router's neighbour table over SSH
type SSHNeighborSource struct {
	config SSHNeighborConfig
	logger zerolog.Logger
}

// NewSSHNeighborSource creates the source; credentials are read on each fetch
func NewSSHNeighborSource(cfg SSHNeighborConfig, logger zerolog.Logger) *SSHNeighborSource {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Command == "" {
		cfg.Command = "ip neigh show"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SSHNeighborSource{config: cfg, logger: logger}
}

// Name returns the source identifier
func (s *SSHNeighborSource) Name() string {
	return "ssh"
}

// FetchStations runs the neighbour command and parses its output
func (s *SSHNeighborSource) FetchStations(ctx context.Context) ([]domain.Station, error) {
	clientConfig, err := s.buildSSHConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrControllerAuthFailed, err)
	}

	client, err := s.connect(ctx, clientConfig)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	output, err := s.runCommand(ctx, client, s.config.Command)
	if err != nil {
		return nil, err
	}

	stations := parseNeighbors(output)
	s.logger.Debug().Str("host", s.config.Host).Int("stations", len(stations)).Msg("read neighbour table")
	return stations, nil
}

// connect establishes an SSH connection honouring ctx for the dial
func (s *SSHNeighborSource) connect(ctx context.Context, config *ssh.ClientConfig) (*ssh.Client, error) {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %w", ErrControllerUnreachable, addr, err)
	}

	if err := conn.SetDeadline(time.Now().Add(s.config.Timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrControllerUnreachable, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %w", ErrControllerAuthFailed, err)
		}
		return nil, fmt.Errorf("%w: failed to establish SSH connection: %w", ErrControllerUnreachable, err)
	}

	// Handshake done; the command has its own deadline
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// buildSSHConfig prefers key authentication and falls back to a password
func (s *SSHNeighborSource) buildSSHConfig() (*ssh.ClientConfig, error) {
	if s.config.Username == "" {
		return nil, errors.New("ssh username is required")
	}

	var auth []ssh.AuthMethod
	if s.config.PrivateKeyPath != "" {
		keyData, err := os.ReadFile(s.config.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if s.config.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(s.config.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.config.Password != "" {
		auth = append(auth, ssh.Password(s.config.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh password or private key is required")
	}

	return &ssh.ClientConfig{
		User:            s.config.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // routers are addressed by operator config
		Timeout:         s.config.Timeout,
	}, nil
}

// runCommand executes cmd and returns its stdout
func (s *SSHNeighborSource) runCommand(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: failed to create session: %w", ErrControllerUnreachable, err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)

	go func() {
		output, err := session.Output(cmd)
		done <- result{output: output, err: err}
	}()

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			var exitErr *ssh.ExitError
			if errors.As(r.err, &exitErr) {
				return "", fmt.Errorf("%w: %q exited with status %d", ErrControllerProtocol, cmd, exitErr.ExitStatus())
			}
			return "", fmt.Errorf("%w: command failed: %w", ErrControllerUnreachable, r.err)
		}
		return string(r.output), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("%w: %w", ErrControllerUnreachable, ctx.Err())
	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("%w: command timeout", ErrControllerUnreachable)
	}
}

// parseNeighbors parses `ip neigh show` output, e.g.
//
//	192.168.1.10 dev br0 lladdr aa:bb:cc:dd:ee:01 REACHABLE
//
// Entries without a link-layer address or in a failed state are skipped.
func parseNeighbors(output string) []domain.Station {
	var stations []domain.Station

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		state := fields[len(fields)-1]
		if !neighbourStates[state] {
			continue
		}

		var mac string
		for i := 1; i < len(fields)-1; i++ {
			if fields[i] == "lladdr" {
				mac = fields[i+1]
				break
			}
		}
		if mac == "" {
			continue
		}

		stations = append(stations, domain.Station{HardwareAddress: mac, IP: fields[0]})
	}

	return stations
}
