package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

var _ Transport = (*Client)(nil)

// testSSHServer provides a minimal SSH server for testing.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	done     chan struct{}

	mu           sync.Mutex
	checksumLine string
}

// newTestSSHServer creates a new test SSH server.
func newTestSSHServer(t *testing.T) *testSSHServer {
	// Generate a test host key
	_, privateKey, err := generateTestKey()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			// Accept any public key for testing
			return nil, nil
		},
	}

	config.AddHostKey(privateKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &testSSHServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		done:     make(chan struct{}),
	}

	go server.serve()

	return server
}

// setChecksumLine sets the output the server returns for sha256sum commands.
func (s *testSSHServer) setChecksumLine(line string) {
	s.mu.Lock()
	s.checksumLine = line
	s.mu.Unlock()
}

// serve handles incoming connections.
func (s *testSSHServer) serve() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single SSH connection.
func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		go s.handleChannel(channel, requests)
	}
}

// handleChannel handles a single SSH channel.
func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			command := string(req.Payload[4:]) // Skip the length prefix

			if req.WantReply {
				req.Reply(true, nil)
			}

			s.runCommand(channel, command)
			return

		case "subsystem":
			if string(req.Payload[4:]) == "sftp" {
				if req.WantReply {
					req.Reply(true, nil)
				}
				// Serve real SFTP over the channel so uploads hit the
				// local filesystem
				if server, err := sftp.NewServer(channel); err == nil {
					_ = server.Serve()
				}
				return
			}
			if req.WantReply {
				req.Reply(false, nil)
			}

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// runCommand answers the test commands the client sends.
func (s *testSSHServer) runCommand(channel ssh.Channel, command string) {
	exitStatus := func(code byte) {
		channel.SendRequest("exit-status", false, []byte{0, 0, 0, code})
	}

	if strings.HasPrefix(command, "sha256sum ") {
		s.mu.Lock()
		line := s.checksumLine
		s.mu.Unlock()

		if line == "" {
			channel.Stderr().Write([]byte("sha256sum: no such file\n"))
			exitStatus(1)
			return
		}
		channel.Write([]byte(line + "\n"))
		exitStatus(0)
		return
	}

	switch command {
	case "true":
		exitStatus(0)
	case "echo test":
		channel.Write([]byte("test\n"))
		exitStatus(0)
	case "echo error >&2":
		channel.Stderr().Write([]byte("error\n"))
		exitStatus(0)
	case "exit 1":
		exitStatus(1)
	case "sleep 2":
		time.Sleep(2 * time.Second)
		exitStatus(0)
	default:
		channel.Write([]byte("command: " + command + "\n"))
		exitStatus(0)
	}
}

// close shuts down the test server.
func (s *testSSHServer) close() {
	close(s.done)
	s.listener.Close()
}

// generateTestKey generates a test SSH key pair.
func generateTestKey() (ssh.PublicKey, ssh.Signer, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		return nil, nil, err
	}

	publicKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, err
	}

	return publicKey, signer, nil
}

// writeTestKey generates an ed25519 private key and writes it in PEM format.
func writeTestKey(t *testing.T, path string) {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	if err := os.WriteFile(path, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
}

// newConnectedClient connects a password-auth client to the test server.
func newConnectedClient(t *testing.T, server *testSSHServer) *Client {
	t.Helper()

	host, port := parseAddress(server.addr)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "testpass"
	config.StrictHostKeyChecking = false

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() { _ = client.Disconnect() })

	return client
}

// parseAddress splits an address into host and port.
func parseAddress(addr string) (string, int) {
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func TestClientConnect(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	host, port := parseAddress(server.addr)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "testpass"
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 5 * time.Second

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}

	info := client.GetConnectionInfo()
	if info.Host != host {
		t.Errorf("expected host '%s', got '%s'", host, info.Host)
	}
	if info.Port != port {
		t.Errorf("expected port %d, got %d", port, info.Port)
	}
	if info.User != "testuser" {
		t.Errorf("expected user 'testuser', got '%s'", info.User)
	}
	if info.ConnectedAt.IsZero() {
		t.Error("expected connected timestamp to be set")
	}
}

func TestClientConnectAuthFailure(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	host, port := parseAddress(server.addr)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "wrongpass"
	config.StrictHostKeyChecking = false

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	err = client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected connect to fail with bad credentials")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if !transportErr.IsAuthError {
		t.Error("expected auth error to be flagged")
	}
	if transportErr.Temporary() {
		t.Error("expected auth failure to be permanent")
	}
}

func TestClientConnectTimeout(t *testing.T) {
	// A listener that never completes the SSH handshake
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	host, port := parseAddress(listener.Addr().String())

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "testpass"
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 1 * time.Second

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = client.Connect(ctx)
	if err == nil {
		t.Fatal("expected connect to time out")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if !transportErr.Temporary() {
		t.Error("expected timeout to be temporary")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", transportErr.Err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := newConnectedClient(t, server)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func TestClientHealthCheckNotConnected(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")
	config.AuthMethod = AuthMethodPassword
	config.Password = "secret"

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check to fail when not connected")
	}
}

func TestClientDisconnect(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := newConnectedClient(t, server)

	if err := client.Disconnect(); err != nil {
		t.Errorf("disconnect failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected client to be disconnected")
	}

	// Disconnecting twice is a no-op
	if err := client.Disconnect(); err != nil {
		t.Errorf("second disconnect failed: %v", err)
	}
}

func TestClientExecuteCommand(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := newConnectedClient(t, server)
	ctx := context.Background()

	t.Run("successful command", func(t *testing.T) {
		stdout, stderr, err := client.ExecuteCommand(ctx, "echo test")
		if err != nil {
			t.Fatalf("command failed: %v", err)
		}

		if stdout != "test" {
			t.Errorf("expected stdout 'test', got '%s'", stdout)
		}

		if stderr != "" {
			t.Errorf("expected empty stderr, got '%s'", stderr)
		}
	})

	t.Run("command with stderr", func(t *testing.T) {
		stdout, stderr, err := client.ExecuteCommand(ctx, "echo error >&2")
		if err != nil {
			t.Fatalf("command failed: %v", err)
		}

		if stdout != "" {
			t.Errorf("expected empty stdout, got '%s'", stdout)
		}

		if stderr != "error" {
			t.Errorf("expected stderr 'error', got '%s'", stderr)
		}
	})
}

func TestClientExecuteCommandExitError(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := newConnectedClient(t, server)

	_, _, err := client.ExecuteCommand(context.Background(), "exit 1")
	if err == nil {
		t.Fatal("expected command to fail")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if transportErr.Temporary() {
		t.Error("expected exit error to be permanent")
	}
	if !strings.Contains(transportErr.Err.Error(), "exited with code 1") {
		t.Errorf("expected exit code in error, got %v", transportErr.Err)
	}
}

func TestClientExecuteCommandTimeout(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := newConnectedClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err := client.ExecuteCommand(ctx, "sleep 2")
	if err == nil {
		t.Fatal("expected command to time out")
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClientExecuteCommandNotConnected(t *testing.T) {
	config := DefaultConfig("example.com", "testuser")
	config.AuthMethod = AuthMethodPassword
	config.Password = "secret"

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, _, err = client.ExecuteCommand(context.Background(), "true")
	if err == nil {
		t.Fatal("expected command to fail when not connected")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if transportErr.Op != "session" {
		t.Errorf("expected op 'session', got '%s'", transportErr.Op)
	}
}

func TestClientKeyAuth(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	host, port := parseAddress(server.addr)

	keyPath := filepath.Join(t.TempDir(), "test_key")
	writeTestKey(t, keyPath)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodKey
	config.PrivateKeyPath = keyPath
	config.StrictHostKeyChecking = false

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect with key auth: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}
}

func TestClientAgentAuth(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	// Run a real agent over a unix socket holding one key
	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	keyring := agent.NewKeyring()
	if err := keyring.Add(agent.AddedKey{PrivateKey: privKey}); err != nil {
		t.Fatalf("failed to add key to agent: %v", err)
	}

	sockPath := filepath.Join(t.TempDir(), "agent.sock")
	agentListener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("failed to listen on agent socket: %v", err)
	}
	defer agentListener.Close()

	go func() {
		for {
			conn, err := agentListener.Accept()
			if err != nil {
				return
			}
			go agent.ServeAgent(keyring, conn)
		}
	}()

	t.Setenv("SSH_AUTH_SOCK", sockPath)

	host, port := parseAddress(server.addr)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodAgent
	config.StrictHostKeyChecking = false

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect with agent auth: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}
}
