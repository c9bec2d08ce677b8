// Package sharecode fetches achievement exports published on the cocogoat
// memo service under a nine-character share code.
package sharecode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/mCat-0/mCat-ac/internal/fetch"
)

// CodeLength is the exact length of a share code.
const CodeLength = 9

var (
	ErrInvalidCode = errors.New("share code must be 9 letters or digits")
	ErrNotFound    = errors.New("no achievement data for this share code")
	ErrRateLimited = errors.New("share service is rate limiting requests")
	ErrNetwork     = errors.New("share service unreachable")
	ErrNoPayload   = errors.New("share response carries no achievement data")
)

var (
	codePattern = regexp.MustCompile(`^[A-Za-z0-9]{9}$`)
	urlPattern  = regexp.MustCompile(`https://77\.cocogoat\.cn/v2/memo/([A-Za-z0-9]+)`)
)

// Valid reports whether s is a well-formed share code.
func Valid(s string) bool {
	return codePattern.MatchString(s)
}

// FindInText returns the code from the first share URL in text. The second
// result is false when text has no share URL; the code may still be
// malformed.
func FindInText(text string) (string, bool) {
	m := urlPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
}

// Client fetches share-code payloads.
type Client struct {
	baseURL string
	fetcher *fetch.Client
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	fetchOpts := []fetch.Option{
		fetch.WithTimeout(opts.Timeout),
		fetch.WithRetry(fetch.RetryConfig{MaxAttempts: 1}),
		fetch.WithHeader("Accept", "application/json"),
		fetch.WithHeader("User-Agent", "mcat-ac"),
	}
	if opts.RatePerSec > 0 {
		fetchOpts = append(fetchOpts, fetch.WithLimiter(rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)))
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		fetcher: fetch.New(fetchOpts...),
	}
}

// Fetch returns the raw export stored under code: the "value" field of the
// memo response.
func (c *Client) Fetch(ctx context.Context, code string) ([]byte, error) {
	if !Valid(code) {
		return nil, ErrInvalidCode
	}

	body, err := c.fetcher.Get(ctx, c.baseURL+"/"+code)
	if err != nil {
		switch fetch.StatusCode(err) {
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
		case http.StatusTooManyRequests:
			return nil, ErrRateLimited
		default:
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
	}

	value := gjson.GetBytes(body, "value")
	if !value.Exists() || value.Type == gjson.Null {
		return nil, ErrNoPayload
	}
	return []byte(value.Raw), nil
}
