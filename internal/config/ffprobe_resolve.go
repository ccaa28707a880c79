// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveFFprobeBin returns the effective ffprobe binary.
//
// Resolution order:
// 1) Explicit ffprobeBin
// 2) Sibling of a concrete ffmpegBin path (.../ffmpeg -> .../ffprobe) if it exists
// 3) "ffprobe" from PATH
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if s := strings.TrimSpace(ffprobeBin); s != "" {
		return s
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	// A bare "ffmpeg" means PATH lookup; do not guess a sibling.
	if strings.ContainsRune(ffmpegBin, '/') && filepath.Base(ffmpegBin) == "ffmpeg" {
		candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
		if fi, err := stat(candidate); err == nil && !fi.IsDir() {
			return candidate
		}
	}
	return "ffprobe"
}
