// Package selfupdate checks GitHub releases for a newer version and fetches
// verified release archives. Installing them is left to the host.
package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

var (
	ErrDevBuild      = errors.New("cannot update a development build")
	ErrAlreadyLatest = errors.New("already running the latest version")
	ErrChecksum      = errors.New("checksum verification failed")
	ErrNoRelease     = errors.New("no published release found")
)

type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Code, e.URL)
}

// DevVersion is the version string of builds without release ldflags.
const DevVersion = "(devel)"

type Checker struct {
	client          *http.Client
	apiBaseURL      string
	downloadBaseURL string
	owner           string
	repo            string
}

type Option func(*Checker)

func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.client.Timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) { c.client = hc }
}

// WithBaseURL points both the API and download hosts at url, for tests and
// GitHub Enterprise.
func WithBaseURL(url string) Option {
	return func(c *Checker) {
		c.apiBaseURL = url
		c.downloadBaseURL = url
	}
}

// WithRepo sets the "owner/name" repository to check.
func WithRepo(ownerRepo string) Option {
	return func(c *Checker) {
		if owner, repo, ok := strings.Cut(ownerRepo, "/"); ok {
			c.owner, c.repo = owner, repo
		}
	}
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		client:          &http.Client{Timeout: 30 * time.Second},
		apiBaseURL:      "https://api.github.com",
		downloadBaseURL: "https://github.com",
		owner:           "mCat-0",
		repo:            "mCat-ac",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type CheckInput struct {
	Version string
}

type CheckResult struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
	PublishedAt     time.Time
}

// Check compares input.Version with the latest published release.
func (c *Checker) Check(ctx context.Context, input *CheckInput) (*CheckResult, error) {
	if input.Version == DevVersion || input.Version == "" {
		return nil, ErrDevBuild
	}
	current := canonical(input.Version)
	if !semver.IsValid(current) {
		return nil, fmt.Errorf("current version %q is not a semantic version", input.Version)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimRight(c.apiBaseURL, "/"), c.owner, c.repo)
	body, err := c.get(ctx, url, "application/vnd.github+json")
	var st *statusError
	if errors.As(err, &st) && st.Code == http.StatusNotFound {
		return nil, ErrNoRelease
	}
	if err != nil {
		return nil, fmt.Errorf("query latest release: %w", err)
	}

	tag := gjson.GetBytes(body, "tag_name").String()
	if tag == "" {
		return nil, ErrNoRelease
	}
	latest := canonical(tag)
	if !semver.IsValid(latest) {
		return nil, fmt.Errorf("latest release tag %q is not a semantic version", tag)
	}

	res := &CheckResult{
		CurrentVersion:  input.Version,
		LatestVersion:   tag,
		UpdateAvailable: semver.Compare(latest, current) > 0,
		ReleaseURL:      gjson.GetBytes(body, "html_url").String(),
	}
	if ts := gjson.GetBytes(body, "published_at").String(); ts != "" {
		res.PublishedAt, _ = time.Parse(time.RFC3339, ts)
	}
	return res, nil
}

// canonical adds the "v" prefix semver requires.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func (c *Checker) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{URL: url, Code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
