package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/vmunix/cinedb/internal/manifest"
)

// ProgressFunc receives transferred and expected bytes. total is 0 when unknown.
type ProgressFunc func(done, total int64)

// download streams m.URL into dst and returns the number of bytes written.
func (i *Installer) download(ctx context.Context, m *manifest.Manifest, dst string) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", i.userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return 0, i.transferError(ctx, "request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s returned %s", ErrDownload, m.URL, resp.Status)
	}

	total := m.SizeBytes
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	f, err := i.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrIO, dst, err)
	}

	body := &stallReader{r: resp.Body, timeout: i.readTimeout, cancel: cancel}
	defer body.stop()
	w := &progressWriter{w: f, total: total, fn: i.progress}

	n, copyErr := io.Copy(w, body)
	closeErr := f.Close()
	if copyErr != nil {
		if body.stalled() {
			return n, fmt.Errorf("%w: no data for %s", ErrDownload, i.readTimeout)
		}
		var pe *os.PathError
		if errors.As(copyErr, &pe) {
			return n, fmt.Errorf("%w: write %s: %v", ErrIO, dst, copyErr)
		}
		return n, i.transferError(ctx, "read body", copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("%w: close %s: %v", ErrIO, dst, closeErr)
	}

	i.log.Debug("artifact downloaded", "bytes", n, "size", humanize.Bytes(uint64(n)), "path", dst)
	return n, nil
}

func (i *Installer) transferError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrCanceled, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrDownload, op, err)
}

// checkSize compares the transferred size with the manifest declaration.
func (i *Installer) checkSize(m *manifest.Manifest, n int64) error {
	if m.SizeBytes <= 0 || n == m.SizeBytes {
		return nil
	}
	if i.strictSize {
		return fmt.Errorf("%w: declared %d bytes, received %d", ErrSizeMismatch, m.SizeBytes, n)
	}
	i.log.Warn("artifact size differs from manifest",
		"declared", humanize.Bytes(uint64(m.SizeBytes)), "received", humanize.Bytes(uint64(n)))
	return nil
}

// stallReader cancels the transfer when no bytes arrive within timeout.
type stallReader struct {
	r       io.Reader
	timeout time.Duration
	cancel  context.CancelFunc

	once  sync.Once
	timer *time.Timer
	mu    sync.Mutex
	fired bool
}

func (s *stallReader) Read(p []byte) (int, error) {
	if s.timeout > 0 {
		s.once.Do(func() {
			s.timer = time.AfterFunc(s.timeout, func() {
				s.mu.Lock()
				s.fired = true
				s.mu.Unlock()
				s.cancel()
			})
		})
	}
	n, err := s.r.Read(p)
	if n > 0 && s.timer != nil {
		s.timer.Reset(s.timeout)
	}
	return n, err
}

func (s *stallReader) stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *stallReader) stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

type progressWriter struct {
	w     io.Writer
	done  int64
	total int64
	fn    ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.fn != nil && n > 0 {
		p.fn(p.done, p.total)
	}
	return n, err
}

// tempName returns a sibling of target used for an in-flight file.
func tempName(target, kind, id string) string {
	return target + "." + kind + "-" + id
}

func removeQuietly(fs afero.Fs, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = fs.Remove(p)
	}
}
