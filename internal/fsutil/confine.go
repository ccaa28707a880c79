// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil keeps caller-supplied names inside a data root.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a relative name resolves outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins root and rel and verifies the result, after symlink
// resolution of the longest existing prefix, is still underneath root.
// rel must be relative and free of backslashes.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrEscapesRoot, rel)
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q is absolute", ErrEscapesRoot, rel)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve root: %w", err)
		}
		realRoot = absRoot
	}

	full := filepath.Join(realRoot, clean)
	resolved, err := resolveExisting(full)
	if err != nil {
		return "", err
	}
	r, err := filepath.Rel(realRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrEscapesRoot, rel, resolved)
	}
	return full, nil
}

// resolveExisting resolves symlinks in the longest prefix of p that exists and
// re-appends the missing tail.
func resolveExisting(p string) (string, error) {
	var tail []string
	cur := p
	for {
		rp, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				rp = filepath.Join(rp, tail[i])
			}
			return rp, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve %s: %w", cur, err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
