// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/media"
	"github.com/ManuGH/streamstage/internal/procgroup"
)

var _ media.Opener = (*Opener)(nil)

// Opener starts one ffmpeg process per opened file and reads raw RGBA frames
// from its stdout.
type Opener struct {
	FFmpegBin  string
	FFprobeBin string
	// KillTimeout bounds how long Close waits for the process after killing it.
	KillTimeout time.Duration
	Logger      zerolog.Logger
}

// NewOpener returns an Opener using the given binaries ("" selects PATH lookup).
func NewOpener(ffmpegBin, ffprobeBin string) *Opener {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &Opener{
		FFmpegBin:   ffmpegBin,
		FFprobeBin:  ffprobeBin,
		KillTimeout: 2 * time.Second,
		Logger:      log.WithComponent("ffmpeg"),
	}
}

// Open probes path and starts the decode process.
func (o *Opener) Open(ctx context.Context, path string) (media.Decoder, error) {
	info, err := Probe(ctx, o.FFprobeBin, path)
	if err != nil {
		return nil, err
	}

	// #nosec G204 - binary comes from operator config; path is opaque
	cmd := exec.CommandContext(ctx, o.FFmpegBin, decodeArgs(path)...)
	procgroup.Set(cmd)
	cmd.Cancel = func() error { return procgroup.Kill(cmd, syscall.SIGKILL) }
	cmd.WaitDelay = o.KillTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe stdout: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec start failed: %w", err)
	}

	frameSize := info.Width * info.Height * 4
	o.Logger.Debug().
		Str(log.FieldEvent, "ffmpeg.started").
		Str(log.FieldPath, path).
		Int("pid", cmd.Process.Pid).
		Int("width", info.Width).
		Int("height", info.Height).
		Int("rotation", info.Rotation).
		Float64(log.FieldNativeFPS, info.FPS).
		Msg("decoder process started")

	return &decoder{
		cmd:    cmd,
		out:    bufio.NewReaderSize(stdout, frameSize),
		stderr: stderr,
		info:   info,
		img:    image.NewNRGBA(image.Rect(0, 0, info.Width, info.Height)),
		logger: o.Logger,
		path:   path,
		grace:  o.KillTimeout,
	}, nil
}

// decodeArgs keeps frames in the coded geometry reported by Probe;
// autorotation would swap width and height for 90 and 270 degree streams.
func decodeArgs(path string) []string {
	return []string{
		"-nostdin",
		"-v", "error",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
}

type decoder struct {
	cmd    *exec.Cmd
	out    *bufio.Reader
	stderr *tailBuffer
	info   StreamInfo
	img    *image.NRGBA
	logger zerolog.Logger
	path   string
	grace  time.Duration

	waitOnce sync.Once
	waitErr  error
	closed   bool
}

func (d *decoder) FrameRate() float64 { return d.info.FPS }

// Next reads one frame into a reused buffer.
func (d *decoder) Next(ctx context.Context) (image.Image, error) {
	if d.closed {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, err := io.ReadFull(d.out, d.img.Pix)
	switch {
	case err == nil:
		return d.img, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if errors.Is(err, io.ErrUnexpectedEOF) {
			d.logger.Warn().
				Str(log.FieldEvent, "ffmpeg.truncated_frame").
				Str(log.FieldPath, d.path).
				Msg("dropping truncated trailing frame")
		}
		if werr := d.wait(); werr != nil {
			return nil, fmt.Errorf("ffmpeg exited: %w (stderr: %s)", werr, d.stderr.String())
		}
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame: %w", err)
	}
}

// Close stops the process group if it is still running: SIGTERM, then SIGKILL
// once KillTimeout has passed. Safe to call repeatedly.
func (d *decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if d.cmd.ProcessState == nil && d.cmd.Process != nil {
		waitCh := make(chan error, 1)
		go func() { waitCh <- d.wait() }()
		err = procgroup.Terminate(d.cmd, waitCh, d.grace)
	} else {
		err = d.wait()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Killed on purpose or already reported through Next.
		return nil
	}
	return err
}

func (d *decoder) wait() error {
	d.waitOnce.Do(func() {
		d.waitErr = d.cmd.Wait()
	})
	return d.waitErr
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
