// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg decodes stored video files through the ffprobe and ffmpeg
// binaries.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideoStream is returned when the container holds no decodable video stream.
var ErrNoVideoStream = errors.New("no video stream")

// StreamInfo describes the first video stream of a file. Width and Height
// are the coded dimensions, before any display rotation.
type StreamInfo struct {
	Width  int
	Height int
	FPS    float64
	// Rotation is the clockwise display rotation in degrees, in [0, 360).
	Rotation int
}

// Probe runs ffprobe against path and returns the first video stream's geometry
// and frame rate.
func Probe(ctx context.Context, ffprobeBin, path string) (StreamInfo, error) {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_streams",
		"-print_format", "json",
		path,
	}

	// #nosec G204 - binary comes from operator config; path is opaque
	cmd := exec.CommandContext(ctx, ffprobeBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, truncate(stderr.String(), 4096))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (StreamInfo, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return StreamInfo{}, fmt.Errorf("json decode: %w", err)
	}
	for _, s := range data.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			continue
		}
		fps := parseRate(s.AvgFrameRate)
		if fps <= 0 {
			fps = parseRate(s.RFrameRate)
		}
		return StreamInfo{Width: s.Width, Height: s.Height, FPS: fps, Rotation: s.rotation()}, nil
	}
	return StreamInfo{}, ErrNoVideoStream
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	Tags         struct {
		Rotate string `json:"rotate,omitempty"`
	} `json:"tags"`
	SideDataList []struct {
		Rotation *float64 `json:"rotation,omitempty"`
	} `json:"side_data_list,omitempty"`
}

// rotation prefers the display matrix, which ffmpeg reports counter-clockwise,
// over the legacy clockwise "rotate" tag.
func (s probeStream) rotation() int {
	for _, sd := range s.SideDataList {
		if sd.Rotation != nil {
			return normalizeDegrees(-int(math.Round(*sd.Rotation)))
		}
	}
	if deg, err := strconv.Atoi(strings.TrimSpace(s.Tags.Rotate)); err == nil {
		return normalizeDegrees(deg)
	}
	return 0
}

func normalizeDegrees(deg int) int {
	return ((deg % 360) + 360) % 360
}

// parseRate parses ffprobe rationals ("30000/1001") and plain decimals.
// Unparseable or undefined rates ("0/0") yield 0.
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

type probeData struct {
	Streams []probeStream `json:"streams"`
}
