// Package fingerprint computes the change-detection digests of resources.
// Dropzones live on flaky network filesystems, so file access is retried a
// bounded number of times before an error is surfaced.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	chunkSize       = 64 * 1024
	defaultAttempts = 10
	defaultDelay    = 200 * time.Millisecond
)

// ReadError is returned when a file stayed unreadable after all attempts.
type ReadError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: giving up after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Option configures a Fingerprinter.
type Option func(*Fingerprinter)

// OptAttempts sets how often file access is tried.
func OptAttempts(n int) Option {
	return func(f *Fingerprinter) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// OptDelay sets the pause between attempts.
func OptDelay(d time.Duration) Option {
	return func(f *Fingerprinter) {
		f.delay = d
	}
}

// OptLogger sets the logger used for retry warnings.
func OptLogger(l *slog.Logger) Option {
	return func(f *Fingerprinter) {
		f.logger = l
	}
}

// Fingerprinter hashes resource payloads.
type Fingerprinter struct {
	attempts int
	delay    time.Duration
	logger   *slog.Logger
	open     func(string) (io.ReadCloser, error)
}

// New creates a Fingerprinter with 10 attempts and a short pause between them.
func New(opts ...Option) *Fingerprinter {
	f := &Fingerprinter{
		attempts: defaultAttempts,
		delay:    defaultDelay,
		logger:   slog.Default(),
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Link returns the digest of a link resource's URL.
func Link(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// File returns the digest of a file's content, streamed in 64 KiB chunks.
func (f *Fingerprinter) File(path string) (string, error) {
	var digest string
	err := f.retry(path, func() error {
		r, err := f.open(path)
		if err != nil {
			return err
		}
		defer r.Close()

		h := md5.New()
		buf := make([]byte, chunkSize)
		if _, err := io.CopyBuffer(h, r, buf); err != nil {
			return err
		}
		digest = hex.EncodeToString(h.Sum(nil))
		return nil
	})
	return digest, err
}

// Open opens a file for reading, retrying transient failures.
func (f *Fingerprinter) Open(path string) (io.ReadCloser, error) {
	var r io.ReadCloser
	err := f.retry(path, func() error {
		var err error
		r, err = f.open(path)
		return err
	})
	return r, err
}

// ReadFile reads a whole file, retrying transient failures.
func (f *Fingerprinter) ReadFile(path string) ([]byte, error) {
	var data []byte
	err := f.retry(path, func() error {
		r, err := f.open(path)
		if err != nil {
			return err
		}
		defer r.Close()
		data, err = io.ReadAll(r)
		return err
	})
	return data, err
}

// retry runs op until it succeeds, the file turns out to be missing, or the
// attempts are spent.
func (f *Fingerprinter) retry(path string, op func() error) error {
	tries := 0
	var last error
	err := backoff.Retry(func() error {
		tries++
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return backoff.Permanent(err)
		}
		last = err
		f.logger.Warn("file access failed", "path", path, "error", err, "tries_left", f.attempts-tries)
		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(f.delay), uint64(f.attempts-1)))

	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return &ReadError{Path: path, Attempts: tries, Err: last}
}
