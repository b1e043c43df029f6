package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher downloads rasters from anonymous FTP mirrors such as
// ftp.worldpop.org. It reports the remote size and can resume a partial
// file, which matters for country rasters of several hundred megabytes.
type FTPFetcher struct {
	timeout time.Duration
}

// NewFTPFetcher creates an FTPFetcher. A zero timeout means 60s.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &FTPFetcher{timeout: opts.Timeout}
}

// splitFTPURL returns the dial address (port 21 unless given) and the
// remote file path of an ftp:// URL.
func splitFTPURL(rawURL string) (addr, file string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", eris.Errorf("ftp: no file path in %s", rawURL)
	}

	addr = u.Host
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "21")
	}
	return addr, u.Path, nil
}

// rasterTransfer streams one RETR. Size is the full remote file size, or -1
// when the server does not answer SIZE.
type rasterTransfer struct {
	resp *ftp.Response
	conn *ftp.ServerConn
	size int64
}

func (r *rasterTransfer) Read(p []byte) (int, error) { return r.resp.Read(p) }

// Size implements Sizer.
func (r *rasterTransfer) Size() int64 { return r.size }

// Close ends the transfer and logs out. A reply other than 226 after the
// data stream, e.g. 426 transfer aborted, is returned here.
func (r *rasterTransfer) Close() error {
	respErr := r.resp.Close()
	_ = r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: finish transfer")
	}
	return nil
}

// Download retrieves the whole file.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return f.DownloadFrom(ctx, rawURL, 0)
}

// DownloadFrom retrieves the file starting at offset bytes (REST). An offset
// at or past the remote size is rejected so the caller can start over.
func (f *FTPFetcher) DownloadFrom(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, error) {
	addr, file, err := splitFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", addr)
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}

	size, err := conn.FileSize(file)
	if err != nil {
		zap.L().Debug("ftp: size unavailable", zap.String("file", file), zap.Error(err))
		size = -1
	}
	if offset > 0 && size >= 0 && offset >= size {
		_ = conn.Quit()
		return nil, eris.Wrapf(ErrBadOffset, "ftp: resume %s at %d of %d bytes", file, offset, size)
	}

	zap.L().Debug("ftp: retrieving",
		zap.String("addr", addr),
		zap.String("file", file),
		zap.Int64("size", size),
		zap.Int64("offset", offset),
	)

	resp, err := conn.RetrFrom(file, uint64(offset))
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", file)
	}
	return &rasterTransfer{resp: resp, conn: conn, size: size}, nil
}
