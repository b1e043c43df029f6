package fetcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity-cli/internal/discovery"
	"github.com/sells-group/popdensity-cli/internal/resilience"
)

// YearPlaceholder is replaced by the year in URL templates.
const YearPlaceholder = "{year}"

// Target is one yearly raster to download.
type Target struct {
	Year int    `json:"year"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Plan expands the URL template for each year and places every file where
// the discovery pattern will find it.
func Plan(urlTemplate string, p discovery.Pattern, years []int) ([]Target, error) {
	if !strings.Contains(urlTemplate, YearPlaceholder) {
		return nil, eris.Errorf("fetcher: url template %q has no %s placeholder", urlTemplate, YearPlaceholder)
	}
	targets := make([]Target, 0, len(years))
	for _, y := range years {
		targets = append(targets, Target{
			Year: y,
			URL:  strings.ReplaceAll(urlTemplate, YearPlaceholder, strconv.Itoa(y)),
			Path: p.Path(y),
		})
	}
	return targets, nil
}

// Result reports one finished download.
type Result struct {
	Target
	Bytes    int64         `json:"bytes"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Downloader fetches targets with retry. Existing files are kept unless
// Overwrite is set, which also discards any part file left by an earlier run.
type Downloader struct {
	Fetcher   Fetcher
	Retry     resilience.RetryConfig
	Overwrite bool
}

// FetchAll downloads targets one after another; a failed year does not stop
// the rest. Only context cancellation ends the run early.
func (d *Downloader) FetchAll(ctx context.Context, targets []Target) []Result {
	results := make([]Result, 0, len(targets))
	for _, t := range targets {
		if ctx.Err() != nil {
			results = append(results, Result{Target: t, Err: eris.Wrap(ctx.Err(), "fetcher: cancelled")})
			continue
		}
		results = append(results, d.Fetch(ctx, t))
	}
	return results
}

// Fetch downloads a single target. The file is written under a temporary
// name and renamed into place only after a complete transfer.
func (d *Downloader) Fetch(ctx context.Context, t Target) Result {
	start := time.Now()
	res := Result{Target: t}

	if !d.Overwrite {
		if info, err := os.Stat(t.Path); err == nil && !info.IsDir() {
			res.Skipped = true
			res.Bytes = info.Size()
			zap.L().Info("fetcher: file exists, skipping", zap.Int("year", t.Year), zap.String("path", t.Path))
			return res
		}
	}

	if d.Overwrite {
		_ = os.Remove(t.Path + ".part")
	}

	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		res.Err = eris.Wrapf(err, "fetcher: create dir for %s", t.Path)
		return res
	}

	cfg := d.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(t.URL, t.Year)
	}

	n, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int64, error) {
		return d.copyOnce(ctx, t)
	})
	res.Bytes = n
	res.Duration = time.Since(start)
	res.Err = err

	if err != nil {
		zap.L().Warn("fetcher: download failed", zap.Int("year", t.Year), zap.String("url", t.URL), zap.Error(err))
	} else {
		zap.L().Info("fetcher: downloaded",
			zap.Int("year", t.Year),
			zap.String("path", t.Path),
			zap.Int64("bytes", n),
			zap.Duration("duration", res.Duration),
		)
	}
	return res
}

// copyOnce runs one transfer attempt into <path>.part. With a Resumer the
// part file survives a failed attempt and the next one continues from its
// end. The transfer must match the remote size when the body reports one.
func (d *Downloader) copyOnce(ctx context.Context, t Target) (int64, error) {
	tmp := t.Path + ".part"
	resumer, resumable := d.Fetcher.(Resumer)

	var offset int64
	if info, err := os.Stat(tmp); err == nil && resumable {
		offset = info.Size()
	}

	body, err := d.open(ctx, resumer, t, offset)
	if errors.Is(err, ErrBadOffset) {
		zap.L().Warn("fetcher: discarding part file", zap.String("path", tmp), zap.Int64("offset", offset))
		offset = 0
		body, err = d.Fetcher.Download(ctx, t.URL)
	}
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY | os.O_APPEND
		zap.L().Info("fetcher: resuming", zap.Int("year", t.Year), zap.Int64("offset", offset))
	}
	file, err := os.OpenFile(tmp, flags, 0o644)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: open %s", tmp)
	}

	n, err := io.Copy(file, body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	total := offset + n
	if err != nil {
		dropPart(tmp, resumable)
		return total, eris.Wrapf(err, "fetcher: write %s", tmp)
	}

	if sized, ok := body.(Sizer); ok && sized.Size() >= 0 && total != sized.Size() {
		short := eris.Errorf("fetcher: %s: got %d of %d bytes", t.URL, total, sized.Size())
		if total > sized.Size() {
			_ = os.Remove(tmp)
			return total, short
		}
		dropPart(tmp, resumable)
		return total, resilience.NewTransientError(short, 0)
	}

	if err := os.Rename(tmp, t.Path); err != nil {
		_ = os.Remove(tmp)
		return total, eris.Wrapf(err, "fetcher: rename %s", tmp)
	}
	return total, nil
}

func (d *Downloader) open(ctx context.Context, resumer Resumer, t Target, offset int64) (io.ReadCloser, error) {
	if offset > 0 {
		return resumer.DownloadFrom(ctx, t.URL, offset)
	}
	return d.Fetcher.Download(ctx, t.URL)
}

// dropPart removes a part file that cannot be resumed.
func dropPart(tmp string, resumable bool) {
	if !resumable {
		_ = os.Remove(tmp)
	}
}
