package fetcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/popdensity-cli/internal/discovery"
	"github.com/sells-group/popdensity-cli/internal/resilience"
)

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestPlan(t *testing.T) {
	p := discovery.DefaultPattern("/data")
	targets, err := Plan("ftp://host/GIS/{year}/CHN/chn_ppp_{year}.tif", p, []int{2010, 2020})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, Target{Year: 2010, URL: "ftp://host/GIS/2010/CHN/chn_ppp_2010.tif", Path: filepath.Join("/data", "chn_ppp_2010.tif")}, targets[0])
	assert.Equal(t, "ftp://host/GIS/2020/CHN/chn_ppp_2020.tif", targets[1].URL)

	_, err = Plan("ftp://host/static.tif", p, []int{2010})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{year}")
}

func TestDownloader_FetchFromFTP(t *testing.T) {
	srv := newMiniFTPServer(t, map[string]string{
		"/GIS/2010/chn_ppp_2010.tif": "year 2010",
		"/GIS/2020/chn_ppp_2020.tif": "year 2020",
	})
	dir := t.TempDir()
	targets, err := Plan(srv.url("/GIS/{year}/chn_ppp_{year}.tif"), discovery.DefaultPattern(dir), []int{2010, 2015, 2020})
	require.NoError(t, err)

	d := &Downloader{Fetcher: NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second}), Retry: fastRetry(3)}
	results := d.FetchAll(context.Background(), targets)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(len("year 2010")), results[0].Bytes)
	data, err := os.ReadFile(filepath.Join(dir, "chn_ppp_2010.tif"))
	require.NoError(t, err)
	assert.Equal(t, "year 2010", string(data))

	require.Error(t, results[1].Err, "550 is permanent")
	assert.Equal(t, 1, srv.retrCount("/GIS/2015/chn_ppp_2015.tif"))
	assert.NoFileExists(t, filepath.Join(dir, "chn_ppp_2015.tif"))
	assert.NoFileExists(t, filepath.Join(dir, "chn_ppp_2015.tif.part"))

	require.NoError(t, results[2].Err)

	resolver, err := discovery.Scan(discovery.DefaultPattern(dir))
	require.NoError(t, err)
	assert.Equal(t, []int{2010, 2020}, resolver.Years())
}

func TestDownloader_RetriesTransientReply(t *testing.T) {
	srv := newMiniFTPServer(t, map[string]string{"/chn_ppp_2010.tif": "ok"})
	srv.failRetr["/chn_ppp_2010.tif"] = 2

	dir := t.TempDir()
	d := &Downloader{Fetcher: NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second}), Retry: fastRetry(3)}
	res := d.Fetch(context.Background(), Target{Year: 2010, URL: srv.url("/chn_ppp_2010.tif"), Path: filepath.Join(dir, "chn_ppp_2010.tif")})

	require.NoError(t, res.Err)
	assert.Equal(t, 3, srv.retrCount("/chn_ppp_2010.tif"))
	assert.FileExists(t, res.Path)
}

func TestDownloader_SkipsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chn_ppp_2010.tif")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))

	d := &Downloader{Fetcher: failingFetcher{}, Retry: fastRetry(1)}
	res := d.Fetch(context.Background(), Target{Year: 2010, URL: "ftp://unused/x.tif", Path: path})
	require.NoError(t, res.Err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int64(5), res.Bytes)

	d.Overwrite = true
	res = d.Fetch(context.Background(), Target{Year: 2010, URL: "ftp://unused/x.tif", Path: path})
	require.Error(t, res.Err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data), "failed download leaves the old file")
}

func TestDownloader_TruncatedTransferCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chn_ppp_2010.tif")

	d := &Downloader{Fetcher: truncatingFetcher{}, Retry: fastRetry(2)}
	res := d.Fetch(context.Background(), Target{Year: 2010, URL: "ftp://x/y.tif", Path: path})
	require.Error(t, res.Err)
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".part")
}

func TestDownloader_ResumesCutTransfer(t *testing.T) {
	const raster = "0123456789abcdef"
	srv := newMiniFTPServer(t, map[string]string{"/chn_ppp_2010.tif": raster})
	srv.cutRetr["/chn_ppp_2010.tif"] = 6

	path := filepath.Join(t.TempDir(), "chn_ppp_2010.tif")
	d := &Downloader{Fetcher: NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second}), Retry: fastRetry(3)}
	res := d.Fetch(context.Background(), Target{Year: 2010, URL: srv.url("/chn_ppp_2010.tif"), Path: path})

	require.NoError(t, res.Err)
	assert.Equal(t, int64(len(raster)), res.Bytes)
	assert.Equal(t, []int{0, 6}, srv.restOffsets(), "second attempt continues from the part file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raster, string(data))
	assert.NoFileExists(t, path+".part")
}

func TestDownloader_StalePartRestarts(t *testing.T) {
	srv := newMiniFTPServer(t, map[string]string{"/chn_ppp_2010.tif": "fresh"})
	path := filepath.Join(t.TempDir(), "chn_ppp_2010.tif")
	require.NoError(t, os.WriteFile(path+".part", []byte("left over from a bigger file"), 0o644))

	d := &Downloader{Fetcher: NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second}), Retry: fastRetry(1)}
	res := d.Fetch(context.Background(), Target{Year: 2010, URL: srv.url("/chn_ppp_2010.tif"), Path: path})

	require.NoError(t, res.Err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestDownloader_ShortSizedBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chn_ppp_2010.tif")

	d := &Downloader{Fetcher: shortFetcher{}, Retry: fastRetry(2)}
	res := d.Fetch(context.Background(), Target{Year: 2010, URL: "https://x/y.tif", Path: path})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "got 7 of 100 bytes")
	assert.True(t, resilience.IsTransient(res.Err))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".part")
}

func TestDownloader_FetchAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Downloader{Fetcher: failingFetcher{}, Retry: fastRetry(1)}
	results := d.FetchAll(ctx, []Target{{Year: 2010}, {Year: 2011}})
	require.Len(t, results, 2)
	for _, r := range results {
		require.Error(t, r.Err)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

type failingFetcher struct{}

func (failingFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("permanent failure")
}

type truncatingFetcher struct{}

func (truncatingFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader("partial"), errReader{})), nil
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// shortFetcher announces more bytes than it sends and cannot resume.
type shortFetcher struct{}

func (shortFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return &httpBody{ReadCloser: io.NopCloser(strings.NewReader("partial")), size: 100}, nil
}
