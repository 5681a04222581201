// Package archive selects and extracts the tabular member from RFB package
// ZIPs. The inner file frequently has no extension, so selection works by
// keyword hints and member size rather than by suffix.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoTabularMember indicates the ZIP contains no eligible file.
var ErrNoTabularMember = errors.New("no eligible file inside the ZIP")

// ListMembers returns the names of all non-directory members, for debugging
// and the UI's inspect endpoint.
func ListMembers(zipPath string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	return names, nil
}

// chooseMember picks the member matching any keyword (case-insensitive
// substring), preferring the largest match. Without a keyword match it
// falls back to the largest member overall.
func chooseMember(files []*zip.File, keywords []string) (*zip.File, error) {
	var members []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		members = append(members, f)
	}
	if len(members) == 0 {
		return nil, ErrNoTabularMember
	}

	largest := func(candidates []*zip.File) *zip.File {
		best := candidates[0]
		for _, f := range candidates[1:] {
			if f.UncompressedSize64 > best.UncompressedSize64 {
				best = f
			}
		}
		return best
	}

	if len(keywords) > 0 {
		var matched []*zip.File
		for _, f := range members {
			name := strings.ToLower(f.Name)
			for _, kw := range keywords {
				if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
					matched = append(matched, f)
					break
				}
			}
		}
		if len(matched) > 0 {
			return largest(matched), nil
		}
	}
	return largest(members), nil
}

// ExtractTabular extracts the chosen member into destDir and returns the
// extracted file's path. Member names are flattened to their base name to
// guard against path traversal.
func ExtractTabular(zipPath, destDir string, keywords []string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	member, err := chooseMember(r.File, keywords)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	base := filepath.Base(filepath.ToSlash(member.Name))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid member name %q", member.Name)
	}
	outPath := filepath.Join(destDir, base)

	src, err := member.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open zip member %s: %w", member.Name, err)
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(outPath) //nolint:gosec // base name only, under destDir
	if err != nil {
		return "", fmt.Errorf("failed to create extracted file: %w", err)
	}

	if _, err := io.Copy(out, src); err != nil { //nolint:gosec // trusted source sizes, disk-backed
		_ = out.Close()
		_ = os.Remove(outPath)
		return "", fmt.Errorf("failed to extract %s: %w", member.Name, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", err
	}
	return outPath, nil
}
