// Package downloader implements §4.H: a bounded-concurrency pipeline that
// ensures a resolved package's artifact is present in the content-addressed
// artifact cache, downloading and verifying it if not.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pantryhq/pantry/internal/artifactcache"
	pantryerrors "github.com/pantryhq/pantry/internal/errors"
)

// defaultMinConcurrency and defaultMaxConcurrency bound the
// min(8, CPUs*2) default from §4.H.
const (
	defaultMinConcurrency = 2
	defaultMaxConcurrency = 64
)

// Task is one package the downloader must ensure is cached.
type Task struct {
	Name        string
	Version     string
	ResolvedURL string
	Integrity   string // hex-encoded SHA-256
}

// Options configures a Downloader.
type Options struct {
	Cache        *artifactcache.Store
	Concurrency  int // 0 = DefaultConcurrency()
	Offline      bool
	ShowProgress bool
	Logger       hclog.Logger
	HTTPClient   *http.Client
}

// Downloader runs Tasks against the artifact cache, honoring offline mode,
// proxy environment variables, retry-with-backoff, and cancellation.
type Downloader struct {
	opts Options
	sem  *semaphore.Weighted
	http *http.Client
}

// DefaultConcurrency returns min(8, CPUs*2) bounded to [2, 64], per §4.H.
func DefaultConcurrency() int {
	n := runtime.NumCPU() * 2
	if n > 8 {
		n = 8
	}
	if n < defaultMinConcurrency {
		n = defaultMinConcurrency
	}
	if n > defaultMaxConcurrency {
		n = defaultMaxConcurrency
	}
	return n
}

// New builds a Downloader. httpClient defaults to one honoring
// HTTP_PROXY/HTTPS_PROXY/NO_PROXY via http.ProxyFromEnvironment.
func New(opts Options) *Downloader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}
	if opts.Concurrency < defaultMinConcurrency {
		opts.Concurrency = defaultMinConcurrency
	}
	if opts.Concurrency > defaultMaxConcurrency {
		opts.Concurrency = defaultMaxConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.HTTPClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyFromEnvironment
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second, Transport: transport}
	}
	return &Downloader{
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.Concurrency)),
		http: opts.HTTPClient,
	}
}

// Ensure guarantees every task's artifact is present in the cache, running
// up to Options.Concurrency downloads at a time. It returns on the first
// fatal error (IntegrityMismatch, network-fatal, or an offline cache miss),
// canceling the rest via ctx.
func (d *Downloader) Ensure(ctx context.Context, tasks []Task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bar *progressbar.ProgressBar
	if d.opts.ShowProgress {
		bar = progressbar.Default(int64(len(tasks)), "downloading")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		if err := d.sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			defer func() {
				if bar != nil {
					_ = bar.Add(1)
				}
			}()
			return d.ensureOne(gctx, task)
		})
	}
	return g.Wait()
}

// ensureOne runs one task's cache-or-fetch-and-verify sequence.
func (d *Downloader) ensureOne(ctx context.Context, t Task) error {
	if d.opts.Cache.Has(t.Name, t.Version) {
		return nil
	}

	if d.opts.Offline {
		return pantryerrors.New(pantryerrors.KindOfflineCacheMiss)
	}

	return d.fetchWithRetry(ctx, t)
}

// fetchWithRetry retries transient network errors with exponential backoff
// up to 3 attempts (§4.H); 4xx responses are fatal and never retried.
func (d *Downloader) fetchWithRetry(ctx context.Context, t Task) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx) // 3 total attempts

	var lastErr error
	err := backoff.Retry(func() error {
		err := d.fetchOnce(ctx, t)
		if err == nil {
			return nil
		}
		lastErr = err
		if isFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	if err != nil {
		if fatalErr, ok := err.(*backoff.PermanentError); ok {
			return fatalErr.Err
		}
		if lastErr != nil {
			return pantryerrors.Wrap(pantryerrors.KindNetworkTransient, lastErr)
		}
		return pantryerrors.Wrap(pantryerrors.KindNetworkTransient, err)
	}
	return nil
}

// fetchOnce performs a single HTTP GET, tees the body through a SHA-256
// hasher into the cache, and lets Store.Put do the final integrity check.
func (d *Downloader) fetchOnce(ctx context.Context, t Task) error {
	if _, err := url.Parse(t.ResolvedURL); err != nil {
		return pantryerrors.Wrap(pantryerrors.KindNetworkFatal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.ResolvedURL, nil)
	if err != nil {
		return pantryerrors.Wrap(pantryerrors.KindNetworkFatal, err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pantryerrors.New(pantryerrors.KindCancelled)
		}
		return pantryerrors.Wrap(pantryerrors.KindNetworkTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return pantryerrors.Wrap(pantryerrors.KindNetworkFatal,
			fmt.Errorf("fetching %s: unexpected status %d", t.ResolvedURL, resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return pantryerrors.Wrap(pantryerrors.KindNetworkTransient,
			fmt.Errorf("fetching %s: unexpected status %d", t.ResolvedURL, resp.StatusCode))
	}

	if err := d.opts.Cache.Put(t.Name, t.Version, t.Integrity, resp.Body); err != nil {
		if _, ok := err.(*artifactcache.IntegrityMismatchError); ok {
			return pantryerrors.IntegrityMismatch(t.Name, t.Expected(), t.Actual(err))
		}
		return pantryerrors.Wrap(pantryerrors.KindCacheCorrupt, err)
	}
	return nil
}

// Expected exposes Task.Integrity for error reporting without importing
// the errors package's field names into callers.
func (t Task) Expected() string { return t.Integrity }

// Actual pulls the "got" hash out of an *artifactcache.IntegrityMismatchError
// for the richer Pantry error report.
func (t Task) Actual(err error) string {
	if mismatch, ok := err.(*artifactcache.IntegrityMismatchError); ok {
		return mismatch.Got
	}
	return ""
}

func isFatal(err error) bool {
	if e, ok := pantryerrors.As(err); ok {
		switch e.Kind {
		case pantryerrors.KindNetworkFatal, pantryerrors.KindIntegrityMismatch, pantryerrors.KindOfflineCacheMiss, pantryerrors.KindCancelled:
			return true
		}
	}
	return false
}

// sha256Hex hex-encodes the SHA-256 of everything read from r, for
// verifying bytes already on disk without routing back through Store.Put.
func sha256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
