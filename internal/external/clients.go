package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/config"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/pkg/logger/sl"
)

// HTTPDirectory is the directory client. Lookups are memoized in a TTL-bound
// LRU so candidate filtering does not hammer the directory; a short TTL keeps
// verification revocations visible quickly.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	cache   *expirable.LRU[string, *User]
	log     *slog.Logger
}

func NewHTTPDirectory(cfg config.External, log *slog.Logger) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: cfg.DirectoryURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		cache:   expirable.NewLRU[string, *User](cfg.DirectoryCache, nil, cfg.DirectoryTTL),
		log:     log,
	}
}

func (d *HTTPDirectory) GetUser(ctx context.Context, userID string) (*User, error) {
	const op = "internal.external.GetUser"

	if u, ok := d.cache.Get(userID); ok {
		return u, nil
	}

	reqURL := fmt.Sprintf("%s/users/%s", d.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: directory request failed: %w", op, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", op, &apperrors.UnknownUserError{UserID: userID})
	default:
		return nil, fmt.Errorf("%s: directory returned status %d", op, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%s: failed to decode directory response: %w", op, err)
	}

	d.cache.Add(userID, &user)

	return &user, nil
}

type HTTPContentStore struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewHTTPContentStore(cfg config.External, log *slog.Logger) *HTTPContentStore {
	return &HTTPContentStore{
		baseURL: cfg.ContentStoreURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		log:     log,
	}
}

func (s *HTTPContentStore) Resolve(ctx context.Context, contentType domain.ContentType, contentID int64) (*Content, error) {
	const op = "internal.external.ResolveContent"

	reqURL := fmt.Sprintf("%s/content/%s/%s",
		s.baseURL, url.PathEscape(string(contentType)), strconv.FormatInt(contentID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: content store request failed: %w", op, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w: %s '%d'", op, apperrors.ErrContentNotFound, contentType, contentID)
	default:
		return nil, fmt.Errorf("%s: content store returned status %d", op, resp.StatusCode)
	}

	var content Content
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("%s: failed to decode content store response: %w", op, err)
	}

	return &content, nil
}

// HTTPNotifier posts events to the notification sink. Errors are returned so
// the caller can log them, but callers never fail their own transition on a
// notification error.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewHTTPNotifier(cfg config.External, log *slog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: cfg.NotifierURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		log:     log,
	}
}

type notifyRequest struct {
	UserID    string         `json:"user_id"`
	EventKind string         `json:"event_kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	SentAt    time.Time      `json:"sent_at"`
}

func (n *HTTPNotifier) Notify(ctx context.Context, userID string, eventKind string, payload map[string]any) error {
	const op = "internal.external.Notify"

	body, err := json.Marshal(notifyRequest{
		UserID:    userID,
		EventKind: eventKind,
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: failed to marshal notification: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/notify", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: notifier request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		n.log.Warn("notifier rejected event",
			slog.String("event_kind", eventKind),
			slog.Int("status", resp.StatusCode))

		return fmt.Errorf("%s: notifier returned status %d", op, resp.StatusCode)
	}

	return nil
}

// LogError is the shared fire-and-forget wrapper: notification failures are
// logged and swallowed so core transitions never block on the sink.
func LogError(log *slog.Logger, err error) {
	if err != nil {
		log.Warn("notification failed", sl.Err(err))
	}
}
