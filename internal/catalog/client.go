package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauern/skillmaster/internal/cache"
	"github.com/klauern/skillmaster/internal/logging"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/progress"
	"github.com/klauern/skillmaster/internal/skillerr"
)

const (
	// MaxPackageSize caps a downloaded archive (100MB).
	MaxPackageSize = 100 * 1024 * 1024
	// maxMetadataBytes caps JSON responses.
	maxMetadataBytes = 4 << 20
	// DefaultSearchLimit is used when Search is called with a non-positive limit.
	DefaultSearchLimit = 20
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	// Cache holds metadata between runs; nil disables caching.
	Cache *cache.Cache
	// ProgressOutput receives the download bar; nil hides it.
	ProgressOutput io.Writer
}

// Client is the HTTP implementation of Fetcher and Searcher.
type Client struct {
	base       *url.URL
	userAgent  string
	httpClient *http.Client
	cache      *cache.Cache
	progress   io.Writer
}

var (
	_ Fetcher  = (*Client)(nil)
	_ Searcher = (*Client)(nil)
)

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid catalog base URL %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "skillmaster-cli"
	}

	return &Client{
		base:       base,
		userAgent:  ua,
		httpClient: hc,
		cache:      opts.Cache,
		progress:   opts.ProgressOutput,
	}, nil
}

type searchResponse struct {
	Skills []model.CatalogSkill `json:"skills"`
}

// Search returns catalog entries matching query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.CatalogSkill, error) {
	const op = "search catalog"
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	u := c.endpoint("skills", "search")
	q := u.Query()
	q.Set("q", strings.TrimSpace(query))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var decoded searchResponse
	if err := c.getJSON(ctx, op, query, u, &decoded); err != nil {
		return nil, err
	}
	logging.Debug("catalog search", "query", query, logging.Count(len(decoded.Skills)))
	return decoded.Skills, nil
}

// Lookup returns metadata for a skill name or catalog id.
func (c *Client) Lookup(ctx context.Context, ref string) (*model.CatalogSkill, error) {
	const op = "lookup skill"
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, skillerr.New(skillerr.KindInvalidRequest, op, "skill reference is empty", nil)
	}

	if c.cache != nil {
		if skill, ok := c.cache.Get(ref); ok {
			logging.Debug("catalog cache hit", logging.Ref(ref))
			return &skill, nil
		}
	}

	var skill model.CatalogSkill
	if err := c.getJSON(ctx, op, ref, c.endpoint("skills", ref), &skill); err != nil {
		return nil, err
	}
	if skill.Name == "" {
		return nil, skillerr.New(skillerr.KindFetchError, op, "catalog returned a skill without a name", nil).
			WithSkill(ref, "", "")
	}

	if c.cache != nil {
		c.cache.Set(ref, skill)
		if err := c.cache.Save(); err != nil {
			logging.Warn("failed to save catalog cache", logging.Path(c.cache.Path()), logging.Err(err))
		}
	}
	return &skill, nil
}

// FetchPackage looks up ref and downloads its archive.
func (c *Client) FetchPackage(ctx context.Context, ref string) (*Package, error) {
	const op = "fetch package"

	skill, err := c.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	u, err := c.downloadURL(skill)
	if err != nil {
		return nil, skillerr.New(skillerr.KindFetchError, op, "invalid download URL", err).
			WithSkill(skill.Name, "", "")
	}

	start := time.Now()
	data, err := c.download(ctx, op, skill.Name, u)
	if err != nil {
		return nil, err
	}

	logging.Info("downloaded package",
		logging.Skill(skill.Name),
		"bytes", len(data),
		logging.Duration(time.Since(start)),
	)
	return &Package{Skill: *skill, Data: data}, nil
}

func (c *Client) downloadURL(skill *model.CatalogSkill) (*url.URL, error) {
	if raw := strings.TrimSpace(skill.DownloadURL); raw != "" {
		ref, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		return c.base.ResolveReference(ref), nil
	}
	id := skill.ID
	if id == "" {
		id = skill.Name
	}
	return c.endpoint("skills", id, "download"), nil
}

func (c *Client) download(ctx context.Context, op, name string, u *url.URL) ([]byte, error) {
	resp, err := c.do(ctx, op, name, u, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.ContentLength > MaxPackageSize {
		return nil, skillerr.New(skillerr.KindFetchError, op,
			fmt.Sprintf("package is %d bytes, limit is %d", resp.ContentLength, MaxPackageSize), nil).
			WithSkill(name, "", "")
	}

	var body io.Reader = io.LimitReader(resp.Body, MaxPackageSize+1)
	var bar *progress.Bar
	if c.progress != nil {
		bar = progress.New(progress.Options{
			Max:         resp.ContentLength,
			Description: "Downloading " + name,
			Writer:      c.progress,
		})
		body = io.TeeReader(body, bar)
	}

	data, err := io.ReadAll(body)
	if bar != nil {
		if err != nil {
			bar.Describe("Download of " + name + " interrupted")
		}
		_ = bar.Finish()
	}
	if err != nil {
		return nil, skillerr.New(skillerr.KindFetchError, op,
			fmt.Sprintf("download interrupted after %d bytes", len(data)), err).
			WithSkill(name, "", "")
	}
	if len(data) > MaxPackageSize {
		return nil, skillerr.New(skillerr.KindFetchError, op, "package exceeds size limit", nil).
			WithSkill(name, "", "")
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, op, ref string, u *url.URL, out any) error {
	resp, err := c.do(ctx, op, ref, u, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return skillerr.New(skillerr.KindFetchError, op, "reading response", err).WithSkill(ref, "", "")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return skillerr.New(skillerr.KindFetchError, op, "invalid catalog response", err).WithSkill(ref, "", "")
	}
	return nil
}

// do sends a GET and maps transport failures and non-2xx statuses to
// classified errors. The caller closes the body of a successful response.
func (c *Client) do(ctx context.Context, op, ref string, u *url.URL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, skillerr.New(skillerr.KindFetchError, op, "building request", err).WithSkill(ref, "", "")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	logging.Debug("catalog request", logging.Operation(op), "url", u.String())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, skillerr.New(skillerr.KindFetchError, op, "catalog unreachable", err).WithSkill(ref, "", "")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, skillerr.New(skillerr.KindSkillNotFound, op,
			fmt.Sprintf("skill %q not found in catalog", ref), nil).WithSkill(ref, "", "")
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("catalog returned %s", resp.Status)
	if s := strings.TrimSpace(string(snippet)); s != "" {
		msg += ": " + s
	}
	return nil, skillerr.New(skillerr.KindFetchError, op, msg, nil).WithSkill(ref, "", "")
}

func (c *Client) endpoint(segments ...string) *url.URL {
	u := *c.base
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(segments, "/")
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.RawQuery = ""
	return &u
}
