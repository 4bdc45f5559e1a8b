package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tillsync-server/internal/domain"
)

// Transport speaks the sync wire protocol against a server. Implementations
// must be safe for use from the coordinator goroutine only.
type Transport interface {
	Push(ctx context.Context, entries []domain.ChangeEntry) (*domain.PushResponse, error)
	Pull(ctx context.Context, since time.Time, limit int) (*domain.PullPayload, error)
}

// TokenFunc supplies the current access token for a request. Refresh handling
// lives behind it.
type TokenFunc func(ctx context.Context) (string, error)

type httpTransport struct {
	baseURL string
	client  *http.Client
	token   TokenFunc
}

func NewHTTPTransport(baseURL string, timeout time.Duration, token TokenFunc) Transport {
	return &httpTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		token:   token,
	}
}

func (t *httpTransport) Push(ctx context.Context, entries []domain.ChangeEntry) (*domain.PushResponse, error) {
	body, err := json.Marshal(&domain.PushRequest{Changes: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/sync/push", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}

	var res domain.PushResponse
	if err := t.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (t *httpTransport) Pull(ctx context.Context, since time.Time, limit int) (*domain.PullPayload, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	endpoint := t.baseURL + "/api/v1/sync/pull"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}

	var payload domain.PullPayload
	if err := t.do(req, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (t *httpTransport) do(req *http.Request, out interface{}) error {
	token, err := t.token(req.Context())
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("sync request returned status %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sync response: %w", err)
	}
	return nil
}
