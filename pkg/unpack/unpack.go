// Package unpack extracts build artifacts and locates the disk-image
// payload a provider expects.
//
// A build artifact is a tar archive produced by the image composer. The
// disk image inside may be xz-compressed (AWS, Azure), carry a
// provider-specific extension that needs renaming (Azure .vhdfixed), or be
// a re-compressed archive that passes through untouched (GCP .tar.gz).
// Each provider variant describes its expectations as a PayloadSpec.
package unpack

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ulikunitz/xz"

	"github.com/3leaps/imageport/pkg/backend"
)

// PayloadSpec describes what a provider wants out of an artifact.
type PayloadSpec struct {
	// Pattern is a doublestar glob matched against extracted file paths
	// relative to the staging directory.
	Pattern string

	// DecompressXZ decompresses every extracted .xz member in place
	// before payload selection.
	DecompressXZ bool

	// RenameExt renames the payload's extension after selection:
	// [0] is the extension to strip, [1] the extension to apply.
	// Both empty means no rename.
	RenameExt [2]string
}

// Provider payload expectations.
var (
	// RawPayload selects an xz-packed raw disk image (AWS).
	RawPayload = PayloadSpec{Pattern: "**/*.raw", DecompressXZ: true}

	// VHDPayload selects an xz-packed fixed VHD and renames it so the
	// provider tooling accepts it (Azure).
	VHDPayload = PayloadSpec{
		Pattern:      "**/*.vhdfixed",
		DecompressXZ: true,
		RenameExt:    [2]string{".vhdfixed", ".vhd"},
	}

	// ArchivePayload selects a re-compressed disk archive untouched (GCP).
	ArchivePayload = PayloadSpec{Pattern: "**/*.tar.gz"}
)

// Unpacker extracts artifacts into a fixed staging directory.
type Unpacker struct {
	stagingDir string
}

// New creates an Unpacker that stages under dir.
func New(dir string) *Unpacker {
	return &Unpacker{stagingDir: dir}
}

// StagingDir returns the directory artifacts are extracted into.
func (u *Unpacker) StagingDir() string {
	return u.stagingDir
}

// Extract unpacks the artifact and returns the absolute path of the single
// payload matching spec.
//
// Returns backend.ErrPayloadNotFound (wrapped) when no extracted file
// matches the spec's pattern.
func (u *Unpacker) Extract(ctx context.Context, archivePath string, spec PayloadSpec) (string, error) {
	if err := os.MkdirAll(u.stagingDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging dir %s: %w", u.stagingDir, err)
	}

	extracted, err := u.extractTar(ctx, archivePath)
	if err != nil {
		return "", err
	}

	if spec.DecompressXZ {
		extracted, err = u.decompressMembers(ctx, extracted)
		if err != nil {
			return "", err
		}
	}

	payload, err := selectPayload(extracted, u.stagingDir, spec.Pattern)
	if err != nil {
		return "", err
	}

	if from := spec.RenameExt[0]; from != "" && strings.HasSuffix(payload, from) {
		renamed := strings.TrimSuffix(payload, from) + spec.RenameExt[1]
		if err := os.Rename(payload, renamed); err != nil {
			return "", fmt.Errorf("failed to rename payload %s: %w", payload, err)
		}
		payload = renamed
	}

	return payload, nil
}

// extractTar writes the archive's regular files into the staging dir and
// returns their paths.
func (u *Unpacker) extractTar(ctx context.Context, archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", archivePath, err)
	}
	defer f.Close()

	var extracted []string
	tr := tar.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", archivePath, err)
		}

		dest, err := u.memberPath(hdr.Name)
		if err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create dir %s: %w", dest, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create dir for %s: %w", dest, err)
			}
			if err := writeFile(dest, tr, hdr.Mode); err != nil {
				return nil, err
			}
			extracted = append(extracted, dest)
		default:
			// Symlinks and special files never carry disk payloads.
		}
	}

	return extracted, nil
}

// memberPath resolves a tar member name inside the staging dir, rejecting
// names that would escape it.
func (u *Unpacker) memberPath(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || cleaned == ".." {
		return "", fmt.Errorf("artifact member escapes staging dir: %s", name)
	}
	return filepath.Join(u.stagingDir, cleaned), nil
}

// decompressMembers decompresses every .xz file in paths next to itself
// and returns the updated path set.
func (u *Unpacker) decompressMembers(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(p, ".xz") {
			out = append(out, p)
			continue
		}

		dest := strings.TrimSuffix(p, ".xz")
		if err := decompressXZ(p, dest); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, nil
}

// decompressXZ streams src through an xz reader into dest.
func decompressXZ(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open compressed payload %s: %w", src, err)
	}
	defer in.Close()

	xr, err := xz.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read xz stream %s: %w", src, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, xr); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to decompress %s: %w", src, err)
	}
	return out.Close()
}

// selectPayload returns the first path matching the glob, relative to the
// staging dir.
func selectPayload(paths []string, stagingDir, pattern string) (string, error) {
	for _, p := range paths {
		rel, err := filepath.Rel(stagingDir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
		if err != nil {
			return "", fmt.Errorf("invalid payload pattern %q: %w", pattern, err)
		}
		if ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("no file matching %q in artifact: %w", pattern, backend.ErrPayloadNotFound)
}

// writeFile creates dest with the member's permission bits and copies the
// tar entry into it.
func writeFile(dest string, r io.Reader, mode int64) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(mode)&0o777)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to extract %s: %w", dest, err)
	}
	return out.Close()
}
