package adapter

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"presenced/internal/domain"
)

const sampleNeighbors = `192.168.1.10 dev br0 lladdr aa:bb:cc:dd:ee:01 REACHABLE
192.168.1.11 dev br0 lladdr aa:bb:cc:dd:ee:02 STALE
192.168.1.12 dev br0  FAILED
192.168.1.13 dev br0 lladdr aa:bb:cc:dd:ee:03 router DELAY
192.168.1.14 dev br0 lladdr aa:bb:cc:dd:ee:04 PERMANENT
fe80::1 dev br0 lladdr aa:bb:cc:dd:ee:05 INCOMPLETE

`

func TestParseNeighbors(t *testing.T) {
	stations := parseNeighbors(sampleNeighbors)

	assert.Equal(t, []domain.Station{
		{HardwareAddress: "aa:bb:cc:dd:ee:01", IP: "192.168.1.10"},
		{HardwareAddress: "aa:bb:cc:dd:ee:02", IP: "192.168.1.11"},
		{HardwareAddress: "aa:bb:cc:dd:ee:03", IP: "192.168.1.13"},
	}, stations)
}

func TestParseNeighbors_Empty(t *testing.T) {
	assert.Empty(t, parseNeighbors(""))
	assert.Empty(t, parseNeighbors("garbage\n"))
}

func TestBuildSSHConfig(t *testing.T) {
	t.Run("missing username", func(t *testing.T) {
		s := NewSSHNeighborSource(SSHNeighborConfig{Host: "router", Password: "x"}, zerolog.Nop())
		_, err := s.buildSSHConfig()
		assert.Error(t, err)
	})

	t.Run("missing credentials", func(t *testing.T) {
		s := NewSSHNeighborSource(SSHNeighborConfig{Host: "router", Username: "admin"}, zerolog.Nop())
		_, err := s.buildSSHConfig()
		assert.Error(t, err)
	})

	t.Run("unreadable key", func(t *testing.T) {
		s := NewSSHNeighborSource(SSHNeighborConfig{
			Host:           "router",
			Username:       "admin",
			PrivateKeyPath: filepath.Join(t.TempDir(), "missing"),
		}, zerolog.Nop())
		_, err := s.buildSSHConfig()
		assert.Error(t, err)
	})

	t.Run("invalid key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "id")
		require.NoError(t, os.WriteFile(path, []byte("not a key"), 0600))
		s := NewSSHNeighborSource(SSHNeighborConfig{Host: "router", Username: "admin", PrivateKeyPath: path}, zerolog.Nop())
		_, err := s.buildSSHConfig()
		assert.Error(t, err)
	})

	t.Run("password", func(t *testing.T) {
		s := NewSSHNeighborSource(SSHNeighborConfig{Host: "router", Username: "admin", Password: "secret"}, zerolog.Nop())
		cfg, err := s.buildSSHConfig()
		require.NoError(t, err)
		assert.Equal(t, "admin", cfg.User)
		assert.Len(t, cfg.Auth, 1)
	})
}

func TestNewSSHNeighborSourceDefaults(t *testing.T) {
	s := NewSSHNeighborSource(SSHNeighborConfig{Host: "router"}, zerolog.Nop())
	assert.Equal(t, "ssh", s.Name())
	assert.Equal(t, 22, s.config.Port)
	assert.Equal(t, "ip neigh show", s.config.Command)
	assert.Equal(t, 10*time.Second, s.config.Timeout)
}

// startSSHServer runs a minimal SSH server that answers every exec request with output
func startSSHServer(t *testing.T, password, output string) int {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)

	serverConfig := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == password {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	serverConfig.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, serverConfig, output)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func serveSSH(conn net.Conn, config *ssh.ServerConfig, output string) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				_ = req.Reply(true, nil)
				_, _ = io.WriteString(channel, output)
				_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
				_ = channel.Close()
			}
		}()
	}
}

func TestSSHNeighborSource_FetchStations(t *testing.T) {
	port := startSSHServer(t, "secret", sampleNeighbors)

	source := NewSSHNeighborSource(SSHNeighborConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "admin",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, zerolog.Nop())

	stations, err := source.FetchStations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 3)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", stations[0].HardwareAddress)
}

func TestSSHNeighborSource_AuthFailed(t *testing.T) {
	port := startSSHServer(t, "secret", sampleNeighbors)

	source := NewSSHNeighborSource(SSHNeighborConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "admin",
		Password: "wrong",
		Timeout:  5 * time.Second,
	}, zerolog.Nop())

	_, err := source.FetchStations(context.Background())
	assert.ErrorIs(t, err, ErrControllerAuthFailed)
}

func TestSSHNeighborSource_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	source := NewSSHNeighborSource(SSHNeighborConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "admin",
		Password: "secret",
		Timeout:  time.Second,
	}, zerolog.Nop())

	_, err = source.FetchStations(context.Background())
	assert.ErrorIs(t, err, ErrControllerUnreachable)
}
