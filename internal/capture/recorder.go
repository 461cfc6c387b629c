// Package capture records the user's voice through an external ffmpeg
// process so the idea can be transcribed by the backend.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Status is the recorder state.
type Status string

const (
	StatusStandby   Status = "standby"
	StatusRecording Status = "recording"
)

// ErrAlreadyRecording is returned by Start while a recording is running.
var ErrAlreadyRecording = errors.New("capture: already recording")

const stopTimeout = 5 * time.Second

// Recorder drives an ffmpeg capture.
type Recorder struct {
	// Bin is the ffmpeg executable.
	Bin string
	// Format is the ffmpeg input format (pulse, avfoundation, dshow, ...).
	Format string
	// Device is the input device passed to -i.
	Device string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     string
	started time.Time
	done    chan error
}

// DefaultFormat returns the capture format for the current OS.
func DefaultFormat() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func (r *Recorder) args(out string) []string {
	format, device := r.Format, r.Device
	if format == "" || device == "" {
		defFormat, defDevice := DefaultFormat()
		if format == "" {
			format = defFormat
		}
		if device == "" {
			device = defDevice
		}
	}
	return []string{"-y", "-f", format, "-i", device, "-ac", "1", "-ar", "16000", out}
}

// Start begins recording into outPath. Cancelling ctx kills the process.
func (r *Recorder) Start(ctx context.Context, outPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return ErrAlreadyRecording
	}
	if strings.TrimSpace(outPath) == "" {
		return fmt.Errorf("capture: output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("capture: create %s: %w", filepath.Dir(outPath), err)
	}
	bin := r.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, r.args(outPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("capture: couldn't open stdin: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("capture: couldn't start %s: %w", bin, err)
	}
	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("capture: recorder exited: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		done <- err
	}()
	r.cmd = cmd
	r.stdin = stdin
	r.out = outPath
	r.started = time.Now()
	r.done = done
	return nil
}

// Stop asks ffmpeg to finish the file and waits for it to exit, releasing
// the device. Stopping an idle recorder is a no-op and returns "".
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return "", nil
	}
	cmd, stdin, done, out := r.cmd, r.stdin, r.done, r.out
	r.cmd, r.stdin, r.done, r.out = nil, nil, nil, ""
	r.started = time.Time{}

	// ffmpeg finalizes the container when it reads "q" on stdin.
	_, _ = io.WriteString(stdin, "q\n")
	_ = stdin.Close()

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return out, err
		}
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-done
		return out, fmt.Errorf("capture: recorder did not stop within %s", stopTimeout)
	}
	if _, err := os.Stat(out); err != nil {
		return out, fmt.Errorf("capture: recording %s missing: %w", out, err)
	}
	return out, nil
}

// Status reports whether a recording is running.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return StatusRecording
	}
	return StatusStandby
}

// Elapsed is how long the current recording has been running.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	return time.Since(r.started)
}
