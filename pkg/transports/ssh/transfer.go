package ssh

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// newSFTPClient opens an SFTP session on the current connection.
func (c *Client) newSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	return sftpClient, nil
}

// UploadFile uploads a single file to the remote host via SFTP.
func (c *Client) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error {
	startTime := time.Now()

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Uint32("mode", mode).
		Msg("uploading file")

	// Open the local file
	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to open local file: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}
	defer localFile.Close()

	fileInfo, err := localFile.Stat()
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to stat local file: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	sftpClient, err := c.newSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	// Ensure the remote directory exists. Remote paths are POSIX regardless
	// of the local OS.
	remoteDir := path.Dir(remotePath)
	if err := sftpClient.MkdirAll(remoteDir); err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote directory: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}
	defer remoteFile.Close()

	bytesWritten, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	// Set file permissions if specified
	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			log.Warn().Err(err).Msg("failed to set file permissions")
		}
	}

	duration := time.Since(startTime)

	log.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", bytesWritten).
		Int64("size", fileInfo.Size()).
		Dur("duration", duration).
		Msg("file uploaded successfully")

	return nil
}

// ComputeChecksum calculates the SHA256 checksum of a remote file.
func (c *Client) ComputeChecksum(ctx context.Context, remotePath string) (string, error) {
	log.Debug().Str("path", remotePath).Msg("computing remote checksum")

	cmd := fmt.Sprintf("sha256sum %s", remotePath)
	stdout, stderr, err := c.ExecuteCommand(ctx, cmd)
	if err != nil {
		return "", &TransportError{
			Op:          "checksum",
			Err:         fmt.Errorf("failed to compute checksum: %s", stderr),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	// Parse the output (format: "checksum  filename")
	fields := strings.Fields(stdout)
	if len(fields) < 1 {
		return "", &TransportError{
			Op:          "checksum",
			Err:         fmt.Errorf("invalid checksum output: %s", stdout),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	return fields[0], nil
}

// LocalChecksum calculates the SHA256 checksum of a local file.
func LocalChecksum(localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// VerifyUpload compares the local and remote checksums of an uploaded file.
func (c *Client) VerifyUpload(ctx context.Context, localPath string, remotePath string) error {
	localSum, err := LocalChecksum(localPath)
	if err != nil {
		return &TransportError{
			Op:          "verify",
			Err:         fmt.Errorf("failed to checksum local file: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	remoteSum, err := c.ComputeChecksum(ctx, remotePath)
	if err != nil {
		return err
	}

	if localSum != remoteSum {
		return &TransportError{
			Op:          "verify",
			Err:         fmt.Errorf("checksum mismatch: local %s, remote %s", localSum, remoteSum),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	log.Debug().Str("path", remotePath).Str("checksum", localSum).Msg("upload verified")
	return nil
}

// copyWithContext copies data from src to dst while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024) // 32KB buffer
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
