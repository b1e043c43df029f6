// Package fetcher downloads the yearly rasters and reads point lists from
// CSV, XLSX and shapefiles.
package fetcher

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Fetcher retrieves a remote file. The caller closes the returned reader.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Resumer is a Fetcher that can continue a transfer at a byte offset.
type Resumer interface {
	Fetcher
	DownloadFrom(ctx context.Context, url string, offset int64) (io.ReadCloser, error)
}

// Sizer is implemented by download bodies that know the full remote size.
// Size returns -1 when it is unknown.
type Sizer interface {
	Size() int64
}

// ErrBadOffset means a resume offset does not fit the remote file.
var ErrBadOffset = errors.New("fetcher: resume offset beyond remote size")

// ForURL picks the fetcher for the URL scheme: ftp, http or https.
func ForURL(rawURL string, timeout time.Duration) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		return NewFTPFetcher(FTPOptions{Timeout: timeout}), nil
	case "http", "https":
		return NewHTTPFetcher(HTTPOptions{Timeout: timeout}), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
}
