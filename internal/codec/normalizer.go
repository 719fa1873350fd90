// Package codec turns arbitrary inbound audio into canonical 16 kHz mono PCM16
// WAV and re-encodes synthesized speech for delivery, both through ffmpeg.
package codec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/executor"
)

var (
	ErrCodecUnavailable = errors.New("audio encoder unavailable")
	ErrConversionFailed = errors.New("audio conversion failed")
)

// Well-known install locations tried when ffmpeg is not on the search path.
var candidatePaths = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
	"/snap/bin/ffmpeg",
	`C:\ffmpeg\bin\ffmpeg.exe`,
}

var lookPath = exec.LookPath

type Options struct {
	// FFmpegPath overrides search-path resolution when it points at a file.
	FFmpegPath string
	Timeout    time.Duration
	Runner     executor.CommandRunner
}

type Normalizer struct {
	exec      *executor.Executor
	log       *logrus.Entry
	verifyMP3 func(path string) error
}

// NewNormalizer never fails: an unresolved encoder surfaces as
// ErrCodecUnavailable from every call instead.
func NewNormalizer(opts Options, log *logrus.Entry) *Normalizer {
	n := &Normalizer{log: log.WithField("component", "codec"), verifyMP3: VerifyMP3}
	bin := resolveFFmpeg(opts.FFmpegPath)
	if bin == "" {
		n.log.Warn("ffmpeg not found; audio conversion disabled")
		return n
	}
	n.exec, _ = executor.New([]string{bin}, opts.Timeout, opts.Runner)
	n.log.WithField("ffmpeg", bin).Info("audio encoder resolved")
	return n
}

func resolveFFmpeg(configured string) string {
	if configured != "" && isFile(configured) {
		return configured
	}
	if p, err := lookPath("ffmpeg"); err == nil {
		return p
	}
	for _, c := range candidatePaths {
		if isFile(c) {
			return c
		}
	}
	return ""
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Available reports whether an encoder was resolved.
func (n *Normalizer) Available() bool { return n.exec != nil }

// CanonicalPath is where Normalize writes the output for input.
func CanonicalPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_16k.wav"
}

// Normalize converts input to 16 kHz mono PCM16 WAV next to it. The input is
// never modified and never returned in place of a converted file.
func (n *Normalizer) Normalize(ctx context.Context, input string) (string, error) {
	if n.exec == nil {
		return "", ErrCodecUnavailable
	}
	out := CanonicalPath(input)
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
		out,
	}
	log := n.log.WithField("input", filepath.Base(input))
	start := time.Now()
	if _, stderr, err := n.exec.Execute(ctx, args, nil); err != nil {
		log.WithError(err).WithField("stderr", tail(stderr)).Warn("ffmpeg normalize failed")
		os.Remove(out)
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	wf, err := ReadWAVFile(out)
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("%w: output unreadable: %v", ErrConversionFailed, err)
	}
	if !wf.Canonical() {
		os.Remove(out)
		return "", fmt.Errorf("%w: output is %d Hz, %d ch, %d bit", ErrConversionFailed, wf.SampleRate, wf.Channels, wf.BitsPerSample)
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("normalized audio")
	return out, nil
}

// ToMP3 re-encodes input as MP3 (same stem, .mp3) and checks the result decodes.
func (n *Normalizer) ToMP3(ctx context.Context, input string) (string, error) {
	if n.exec == nil {
		return "", ErrCodecUnavailable
	}
	out := strings.TrimSuffix(input, filepath.Ext(input)) + ".mp3"
	if out == input {
		return "", fmt.Errorf("%w: input is already %s", ErrConversionFailed, filepath.Base(input))
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-codec:a", "libmp3lame", "-b:a", "64k",
		out,
	}
	if _, stderr, err := n.exec.Execute(ctx, args, nil); err != nil {
		n.log.WithError(err).WithField("stderr", tail(stderr)).Warn("ffmpeg mp3 encode failed")
		os.Remove(out)
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	if err := n.verifyMP3(out); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	return out, nil
}

// VerifyMP3 decodes the first frame of path.
func VerifyMP3(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("not an mp3: %w", err)
	}
	if dec.SampleRate() <= 0 {
		return fmt.Errorf("mp3 has no sample rate")
	}
	return nil
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}
