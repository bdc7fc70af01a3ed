// Package fetcher talks to the Instagram web API: it resolves account
// handles to ids and lists their active stories.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"story_bot/internal/model"
)

const (
	defaultBaseURL = "https://www.instagram.com"
	maxBodySize    = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Signer supplies the headers of an authenticated request.
type Signer interface {
	RequestHeader(ctx context.Context) (http.Header, error)
}

// Fetcher downloads profile and story data.
type Fetcher struct {
	client   HTTPClient
	signer   Signer
	log      *slog.Logger
	baseURL  string
	attempts uint
	delay    time.Duration
}

// New creates a Fetcher that signs every request through signer.
func New(client HTTPClient, signer Signer, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:   client,
		signer:   signer,
		log:      log,
		baseURL:  defaultBaseURL,
		attempts: 3,
		delay:    time.Second,
	}
}

// SetRetryPolicy changes how often and how far apart transport failures and
// server errors are retried.
func (f *Fetcher) SetRetryPolicy(attempts uint, delay time.Duration) {
	if attempts == 0 {
		attempts = 1
	}
	if delay <= 0 {
		delay = time.Millisecond
	}
	f.attempts = attempts
	f.delay = delay
}

// SetBaseURL points the fetcher at a different host (used in tests).
func (f *Fetcher) SetBaseURL(base string) {
	f.baseURL = strings.TrimSuffix(base, "/")
}

// Stories resolves handle and returns its active story items.
func (f *Fetcher) Stories(ctx context.Context, handle string) ([]model.Item, error) {
	id, err := f.ResolveAccountID(ctx, handle)
	if err != nil {
		return nil, err
	}
	return f.FetchItems(ctx, id)
}

type profileResponse struct {
	Data struct {
		User *struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"data"`
}

// ResolveAccountID looks up the platform id of handle. A response that is not
// JSON at all yields a *NotFoundError; everything else that fails, broken
// JSON included, is transient.
func (f *Fetcher) ResolveAccountID(ctx context.Context, handle string) (string, error) {
	q := url.Values{"username": {handle}}
	body, status, err := f.get(ctx, "resolve "+handle, f.baseURL+"/api/v1/users/web_profile_info/?"+q.Encode())
	if err != nil {
		return "", err
	}

	var resp profileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if looksLikeJSON(body) {
			return "", &TransientError{Op: "resolve " + handle, Err: fmt.Errorf("decode profile: %w", err)}
		}
		return "", &NotFoundError{Handle: handle, Status: status, PageTitle: pageTitle(body)}
	}
	if resp.Data.User == nil || resp.Data.User.ID == "" {
		return "", &TransientError{
			Op:  "resolve " + handle,
			Err: fmt.Errorf("no user id in response (HTTP %d)", status),
		}
	}
	return resp.Data.User.ID, nil
}

type reelsResponse struct {
	ReelsMedia []struct {
		Items []reelItem `json:"items"`
	} `json:"reels_media"`
}

type mediaVersion struct {
	URL string `json:"url"`
}

type reelItem struct {
	ID             string         `json:"id"`
	MediaType      int            `json:"media_type"`
	TakenAt        int64          `json:"taken_at"`
	ExpiringAt     int64          `json:"expiring_at"`
	VideoVersions  []mediaVersion `json:"video_versions"`
	ImageVersions2 struct {
		Candidates []mediaVersion `json:"candidates"`
	} `json:"image_versions2"`
}

const mediaTypeVideo = 2

// FetchItems lists the active stories of an account id. No reel means no
// stories and is not an error.
func (f *Fetcher) FetchItems(ctx context.Context, accountID string) ([]model.Item, error) {
	op := "fetch stories " + accountID
	q := url.Values{"reel_ids": {accountID}}
	body, status, err := f.get(ctx, op, f.baseURL+"/api/v1/feed/reels_media/?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("HTTP %d", status)}
	}

	var resp reelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("decode reels: %w", err)}
	}
	if len(resp.ReelsMedia) == 0 {
		return []model.Item{}, nil
	}

	raw := resp.ReelsMedia[0].Items
	items := make([]model.Item, 0, len(raw))
	for _, r := range raw {
		item, ok := convertItem(r)
		if !ok {
			f.log.Warn("skipping story without media variants", "account_id", accountID, "story_id", r.ID, "media_type", r.MediaType)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func convertItem(r reelItem) (model.Item, bool) {
	item := model.Item{
		ID:        r.ID,
		TakenAt:   time.Unix(r.TakenAt, 0).UTC(),
		ExpiresAt: time.Unix(r.ExpiringAt, 0).UTC(),
	}
	if r.ID == "" {
		return item, false
	}
	if r.MediaType == mediaTypeVideo {
		if len(r.VideoVersions) == 0 {
			return item, false
		}
		item.Kind = model.MediaVideo
		item.URL = r.VideoVersions[0].URL
		return item, true
	}
	if len(r.ImageVersions2.Candidates) == 0 {
		return item, false
	}
	item.Kind = model.MediaImage
	item.URL = r.ImageVersions2.Candidates[0].URL
	return item, true
}

// get performs a signed GET. Transport failures and 5xx answers are retried;
// a 429 is returned at once. Any other status is handed back to the caller
// together with the body.
func (f *Fetcher) get(ctx context.Context, op, rawURL string) ([]byte, int, error) {
	var (
		body   []byte
		status int
		last   error
	)

	err := retry.Do(
		func() error {
			header, err := f.signer.RequestHeader(ctx)
			if err != nil {
				last = &TransientError{Op: op, Err: fmt.Errorf("sign request: %w", err)}
				return retry.Unrecoverable(last)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
			if err != nil {
				last = &TransientError{Op: op, Err: fmt.Errorf("create request: %w", err)}
				return retry.Unrecoverable(last)
			}
			req.Header = header

			start := time.Now()
			resp, err := f.client.Do(req)
			if err != nil {
				last = &TransientError{Op: op, Err: fmt.Errorf("http get: %w", err)}
				return last
			}
			defer func() { _ = resp.Body.Close() }()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
			if err != nil {
				last = &TransientError{Op: op, Err: fmt.Errorf("read body: %w", err)}
				return last
			}
			if len(data) > maxBodySize {
				last = &TransientError{Op: op, Err: fmt.Errorf("response too large (over %d bytes)", maxBodySize)}
				return retry.Unrecoverable(last)
			}
			f.log.Debug("api request completed", "op", op, "status_code", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				last = &TransientError{Op: op, Err: ErrRateLimited}
				return last
			case resp.StatusCode >= http.StatusInternalServerError:
				last = &TransientError{Op: op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
				return last
			}

			body, status, last = data, resp.StatusCode, nil
			return nil
		},
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.MaxDelay(10*f.delay),
		retry.MaxJitter(f.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			f.log.Info("retrying request", "op", op, "attempt", n+1, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrRateLimited)
		}),
	)

	if last != nil {
		return nil, 0, last
	}
	if err != nil {
		return nil, 0, &TransientError{Op: op, Err: err}
	}
	return body, status, nil
}

// pageTitle extracts the <title> of an HTML body, for diagnostics only.
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// looksLikeJSON reports whether body opens like a JSON object or array.
func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
