package selfupdate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mCat-0/mCat-ac/internal/fsutil"
)

type DownloadInput struct {
	CurrentVersion string
	// TargetVersion defaults to the latest release.
	TargetVersion string
	// Dir receives the archive.
	Dir string
}

type DownloadProgress struct {
	Stage   string
	Message string
}

// Download fetches the release archive for this platform, verifies it
// against the release checksums.txt and writes it to input.Dir. It returns
// the archive path.
func (c *Checker) Download(ctx context.Context, input *DownloadInput, progress func(DownloadProgress)) (string, error) {
	if input.CurrentVersion == DevVersion {
		return "", ErrDevBuild
	}

	tag := input.TargetVersion
	if tag == "" {
		progress(DownloadProgress{Stage: "check", Message: "Checking for latest version..."})
		result, err := c.Check(ctx, &CheckInput{Version: input.CurrentVersion})
		if err != nil {
			return "", fmt.Errorf("check for updates: %w", err)
		}
		if !result.UpdateAvailable {
			return "", ErrAlreadyLatest
		}
		tag = result.LatestVersion
	}

	asset, err := assetName()
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(c.downloadBaseURL, "/")
	assetURL := fmt.Sprintf("%s/%s/%s/releases/download/%s/%s", base, c.owner, c.repo, tag, asset)
	checksumsURL := fmt.Sprintf("%s/%s/%s/releases/download/%s/checksums.txt", base, c.owner, c.repo, tag)

	progress(DownloadProgress{Stage: "download", Message: fmt.Sprintf("Downloading %s...", tag)})
	archive, err := c.get(ctx, assetURL, "")
	if err != nil {
		return "", fmt.Errorf("download archive: %w", err)
	}

	progress(DownloadProgress{Stage: "verify", Message: "Verifying checksum..."})
	sums, err := c.get(ctx, checksumsURL, "")
	if err != nil {
		return "", fmt.Errorf("download checksums: %w", err)
	}
	expected, ok := parseChecksums(sums)[asset]
	if !ok {
		return "", fmt.Errorf("no checksum found for %s in checksums.txt", asset)
	}
	if err := verifyChecksum(archive, expected); err != nil {
		return "", err
	}

	path := filepath.Join(input.Dir, asset)
	if err := fsutil.WriteFileAtomic(path, archive, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}

	progress(DownloadProgress{Stage: "done", Message: fmt.Sprintf("Saved %s", path)})
	return path, nil
}

func assetName() (string, error) {
	return assetNameFor(runtime.GOOS, runtime.GOARCH)
}

func assetNameFor(goos, goarch string) (string, error) {
	switch goos {
	case "darwin":
		return "mcat-ac_Darwin_all.tar.gz", nil
	case "linux":
		arch := goarchToRelease(goarch)
		if arch == "" {
			return "", fmt.Errorf("unsupported architecture: %s", goarch)
		}
		return fmt.Sprintf("mcat-ac_Linux_%s.tar.gz", arch), nil
	case "windows":
		arch := goarchToRelease(goarch)
		if arch == "" {
			return "", fmt.Errorf("unsupported architecture: %s", goarch)
		}
		return fmt.Sprintf("mcat-ac_Windows_%s.zip", arch), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

func goarchToRelease(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "arm64"
	case "386":
		return "i386"
	default:
		return ""
	}
}

// parseChecksums reads "<sha256>  <file>" lines.
func parseChecksums(data []byte) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		result[parts[1]] = parts[0]
	}
	return result
}

func verifyChecksum(data []byte, expectedHex string) error {
	h := sha256.Sum256(data)
	actual := hex.EncodeToString(h[:])
	if actual != expectedHex {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksum, expectedHex, actual)
	}
	return nil
}
