package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fel4os/fel4/pkg/stores"
)

// StageArtifact copies src into destDir, preserving the file mode, and
// returns the staged artifact with its size and SHA-256 checksum.
func StageArtifact(src, destDir, kind string) (ArtifactInfo, error) {
	info, err := os.Stat(src)
	if err != nil {
		return ArtifactInfo{}, NewPermanentError(fmt.Sprintf("artifact %s not found", src), err).
			WithCode(ErrCodeArtifactMissing)
	}
	if info.IsDir() {
		return ArtifactInfo{}, NewPermanentError(fmt.Sprintf("artifact %s is a directory", src), nil).
			WithCode(ErrCodeArtifactMissing)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return ArtifactInfo{}, NewPermanentError("failed to create artifact directory", err).
			WithCode(ErrCodeInternal)
	}

	in, err := os.Open(src)
	if err != nil {
		return ArtifactInfo{}, NewPermanentError(fmt.Sprintf("failed to open artifact %s", src), err).
			WithCode(ErrCodeInternal)
	}
	defer in.Close()

	dest := filepath.Join(destDir, filepath.Base(src))
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return ArtifactInfo{}, NewPermanentError(fmt.Sprintf("failed to create %s", dest), err).
			WithCode(ErrCodeInternal)
	}
	defer out.Close()

	hash := sha256.New()
	size, err := io.Copy(out, io.TeeReader(in, hash))
	if err != nil {
		return ArtifactInfo{}, NewPermanentError(fmt.Sprintf("failed to stage %s", src), err).
			WithCode(ErrCodeInternal)
	}

	return ArtifactInfo{
		Kind:     kind,
		Path:     dest,
		Size:     size,
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// ClassifyArtifact guesses the artifact kind from its file name. seL4
// builds name the kernel image with a "kernel" prefix and the root task
// with "rootserver"; everything else is treated as a bootable image.
func ClassifyArtifact(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "kernel"):
		return stores.ArtifactKindKernel
	case strings.Contains(lower, "rootserver"), strings.Contains(lower, "root-task"):
		return stores.ArtifactKindRootTask
	default:
		return stores.ArtifactKindBootImage
	}
}
