// Package ssh provides the SSH transport used to push boot images to
// development boards and staging hosts.
package ssh

import (
	"context"
	"time"
)

// Transport defines the remote operations a deployment needs.
// It covers connection management, command execution, and image upload.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	// Returns an error if connection fails or authentication is rejected.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	// Should be called when the transport is no longer needed.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	// Returns an error if the connection is dead or unresponsive.
	HealthCheck(ctx context.Context) error

	// ExecuteCommand runs a command on the remote host.
	// Returns stdout, stderr, and any error that occurred.
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// UploadFile uploads a single file to the remote host via SFTP.
	// The mode parameter sets file permissions (e.g., 0644).
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error

	// ComputeChecksum calculates the SHA256 checksum of a remote file.
	ComputeChecksum(ctx context.Context, remotePath string) (string, error)

	// VerifyUpload compares the local and remote checksums of an uploaded file.
	VerifyUpload(ctx context.Context, localPath string, remotePath string) error

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port number
	Port int

	// User is the SSH username
	User string

	// ConnectedAt is when the connection was established
	ConnectedAt time.Time

	// LastActivity is when the connection was last used
	LastActivity time.Time
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "execute", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
