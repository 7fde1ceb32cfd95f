package installer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

const (
	mimeZip    = "application/zip"
	mimeGzip   = "application/gzip"
	mimeSQLite = "application/vnd.sqlite3"
)

// sniff detects the MIME type of the file at path.
func sniff(fs afero.Fs, path string) (*mimetype.MIME, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer func() { _ = f.Close() }()

	m, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: sniff %s: %v", ErrIO, path, err)
	}
	return m, nil
}

// is reports whether m or one of its parents is the MIME type want.
func is(m *mimetype.MIME, want string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}

// decompress extracts src into dst. Zip archives contribute only their first
// regular file.
func (i *Installer) decompress(ctx context.Context, src, dst string) (int64, error) {
	kind, err := sniff(i.fs, src)
	if err != nil {
		return 0, err
	}

	in, err := i.fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrIO, src, err)
	}
	defer func() { _ = in.Close() }()

	var payload io.ReadCloser
	switch {
	case is(kind, mimeZip):
		payload, err = firstZipEntry(in)
	case is(kind, mimeGzip):
		payload, err = gzip.NewReader(in)
		if err != nil {
			err = fmt.Errorf("%w: gzip: %v", ErrInvalidArtifact, err)
		}
	default:
		err = fmt.Errorf("%w: compressed artifact has type %s", ErrInvalidArtifact, kind.String())
	}
	if err != nil {
		return 0, err
	}
	defer func() { _ = payload.Close() }()

	out, err := i.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrIO, dst, err)
	}
	n, copyErr := io.Copy(out, &ctxReader{ctx: ctx, r: payload})
	closeErr := out.Close()
	switch {
	case copyErr != nil && ctx.Err() != nil:
		return n, fmt.Errorf("%w: decompress: %v", ErrCanceled, ctx.Err())
	case copyErr != nil:
		return n, fmt.Errorf("%w: decompress: %v", ErrInvalidArtifact, copyErr)
	case closeErr != nil:
		return n, fmt.Errorf("%w: close %s: %v", ErrIO, dst, closeErr)
	}

	i.log.Debug("artifact decompressed", "type", kind.String(), "bytes", n)
	return n, nil
}

func firstZipEntry(f afero.File) (io.ReadCloser, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat archive: %v", ErrIO, err)
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: zip: %v", ErrInvalidArtifact, err)
	}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: zip entry %s: %v", ErrInvalidArtifact, zf.Name, err)
		}
		return rc, nil
	}
	return nil, fmt.Errorf("%w: empty zip archive", ErrInvalidArtifact)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
