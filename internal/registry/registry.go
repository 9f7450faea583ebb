// Package registry implements the §4.H metadata-fetch side of the
// downloader/verifier: given a package name, it returns the candidate
// version set the resolver needs, fetched over HTTP with the retry and
// backoff behavior the rest of the stack uses for outbound requests.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/resolver"
)

// pantryVersion is a plain string because it only feeds the user agent
// string; the resolver does its own semver parsing on the Version field of
// each returned Candidate.
const pantryVersion = "0.1.0"

// Options configures a Client.
type Options struct {
	// BaseURL is the registry root, e.g. "https://registry.example.com".
	// ScopeOverrides maps an "@scope" to its own base URL (.npmrc
	// "@scope:registry", §4.C).
	BaseURL        string
	ScopeOverrides map[string]string

	Token   string
	Logger  hclog.Logger
	Timeout time.Duration

	// Proxy, if set, is used for outbound requests instead of the
	// environment's HTTP_PROXY/HTTPS_PROXY/NO_PROXY (those are honored by
	// http.ProxyFromEnvironment when Proxy is nil).
	Proxy string
}

// Client fetches package metadata over HTTP. It implements
// resolver.MetadataFetcher.
type Client struct {
	opts Options
	http *retryablehttp.Client
}

var _ resolver.MetadataFetcher = (*Client)(nil)

// New builds a Client. A nil Logger is replaced with a discarding logger so
// callers that don't care about registry diagnostics don't need to build one.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	c := &Client{
		opts: opts,
		http: &retryablehttp.Client{
			HTTPClient: &http.Client{
				Timeout:   opts.Timeout,
				Transport: transport,
			},
			RetryWaitMin: 200 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			RetryMax:     3,
			Backoff:      retryablehttp.DefaultBackoff,
			Logger:       opts.Logger,
		},
	}
	c.http.CheckRetry = c.checkRetry
	return c
}

// checkRetry retries on transient network failures and 5xx responses, never
// on 4xx (per §4.H: "4xx responses do not retry").
func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// baseURLFor returns the registry root for name, honoring a per-scope
// override when name is scoped ("@scope/pkg").
func (c *Client) baseURLFor(name string) string {
	if strings.HasPrefix(name, "@") {
		if scope, _, ok := strings.Cut(name, "/"); ok {
			if override, ok := c.opts.ScopeOverrides[scope]; ok {
				return override
			}
		}
	}
	return c.opts.BaseURL
}

// metadataResponse is the wire shape a registry returns for a package's
// version listing: a flat array of versions with their dependency edges and
// download coordinates, the superset every version-listing registry API in
// the pack (npm-compatible and otherwise) can be mapped onto.
type metadataResponse struct {
	Versions []struct {
		Version              string            `json:"version"`
		PublishedAt          time.Time         `json:"publishedAt"`
		ResolvedURL          string            `json:"resolvedUrl"`
		Integrity            string            `json:"integrity"`
		Dependencies         map[string]string `json:"dependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
		PeerDependencies     map[string]string `json:"peerDependencies"`
		Binaries             map[string]string `json:"bin"`
		Env                  map[string]string `json:"env"`
		Scripts              map[string]string `json:"scripts"`
	} `json:"versions"`
}

// FetchCandidates implements resolver.MetadataFetcher.
func (c *Client) FetchCandidates(ctx context.Context, name string) ([]resolver.Candidate, error) {
	endpoint := strings.TrimRight(c.baseURLFor(name), "/") + "/" + url.PathEscape(name)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pantryerrors.RegistryFetchFailed(name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pantryerrors.RegistryFetchFailed(name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pantryerrors.RegistryFetchFailed(name, fmt.Errorf("package %q not found", name))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, pantryerrors.RegistryFetchFailed(name, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var meta metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, pantryerrors.RegistryFetchFailed(name, err)
	}

	candidates := make([]resolver.Candidate, 0, len(meta.Versions))
	for _, v := range meta.Versions {
		candidates = append(candidates, resolver.Candidate{
			Version:              v.Version,
			PublishedAt:          v.PublishedAt,
			ResolvedURL:          v.ResolvedURL,
			Integrity:            v.Integrity,
			Dependencies:         v.Dependencies,
			OptionalDependencies: v.OptionalDependencies,
			PeerDependencies:     v.PeerDependencies,
			Binaries:             v.Binaries,
			Env:                  v.Env,
			Scripts:              v.Scripts,
		})
	}
	return candidates, nil
}

func (c *Client) userAgent() string {
	return fmt.Sprintf("pantry/%s %s %s (%s)", pantryVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
