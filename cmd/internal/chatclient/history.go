package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	v1 "huddle/contracts/realtime/v1"
)

var (
	ErrUnauthorized = errors.New("chatclient: session rejected")
	ErrForbidden    = errors.New("chatclient: not a chat participant")
)

// StatusError is a non-2xx answer from the history endpoint.
type StatusError struct {
	Status int
	Code   string
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chatclient: http %d", e.Status)
	}
	return fmt.Sprintf("chatclient: http %d: %s: %s", e.Status, e.Code, e.Msg)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return nil
	}
}

// retryable reports whether a page read may be repeated.
func (e *StatusError) retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// HTTPFetcher reads GET /chats/{chatId}/messages. Page reads are idempotent
// and are retried on network errors, 5xx and 429.
type HTTPFetcher struct {
	base       *url.URL
	client     *http.Client
	retry      RetryPolicy
	token      string
	cookieName string
}

type HTTPOption func(*HTTPFetcher)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithSessionToken sends tok as the session cookie on every request.
func WithSessionToken(tok string) HTTPOption {
	return func(f *HTTPFetcher) { f.token = tok }
}

func WithCookieName(name string) HTTPOption {
	return func(f *HTTPFetcher) {
		if name != "" {
			f.cookieName = name
		}
	}
}

func WithFetchRetry(p RetryPolicy) HTTPOption {
	return func(f *HTTPFetcher) { f.retry = p }
}

// NewHTTPFetcher targets the server at baseURL ("http://host:port").
func NewHTTPFetcher(baseURL string, opts ...HTTPOption) (*HTTPFetcher, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("chatclient: bad base url %q", baseURL)
	}
	f := &HTTPFetcher{
		base:       u,
		client:     &http.Client{Timeout: 10 * time.Second},
		retry:      DefaultRetryPolicy(),
		cookieName: "sessionId",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

var _ PageFetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) FetchPage(ctx context.Context, chatID, cursor string, limit int) (Page, error) {
	u := f.base.JoinPath("chats", chatID, "messages")
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	var page Page
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		p, err := f.get(ctx, u.String())
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.retryable() {
				return Permanent(err)
			}
			return err
		}
		page = p
		return nil
	})
	return page, err
}

func (f *HTTPFetcher) get(ctx context.Context, target string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.AddCookie(&http.Cookie{Name: f.cookieName, Value: url.PathEscape(f.token)})
	}

	res, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return Page{}, err
	}
	if res.StatusCode != http.StatusOK {
		se := &StatusError{Status: res.StatusCode}
		var eb struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &eb) == nil {
			se.Code, se.Msg = eb.Error.Code, eb.Error.Message
		}
		return Page{}, se
	}

	var mp v1.MessagePage
	if err := json.Unmarshal(body, &mp); err != nil {
		return Page{}, Permanent(fmt.Errorf("chatclient: decode page: %w", err))
	}
	p := Page{Messages: mp.Messages, HasMore: mp.HasMore}
	if mp.NextCursor != nil {
		p.NextCursor = *mp.NextCursor
	}
	return p, nil
}
