package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"disputeSync/internal/model"
)

// HTTPStore talks to a remote metadata store over HTTP.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPStore builds an HTTPStore rooted at baseURL.
func NewHTTPStore(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (s *HTTPStore) GetProfile(ctx context.Context, account string) (*model.Profile, error) {
	var profile *model.Profile
	if err := s.do(ctx, http.MethodGet, s.path(account), nil, &profile); err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %s: %w", account, ErrNotFound)
	}
	return profile, nil
}

func (s *HTTPStore) CreateProfile(ctx context.Context, account string) (*model.Profile, error) {
	var profile *model.Profile
	if err := s.do(ctx, http.MethodPost, s.path(account), nil, &profile); err != nil {
		return nil, err
	}
	if profile == nil {
		profile = model.NewProfile(account)
	}
	return profile, nil
}

func (s *HTTPStore) UpdateContract(ctx context.Context, account, contract string, body model.Fields) error {
	return s.do(ctx, http.MethodPost, s.path(account, "contracts", contract), body, nil)
}

func (s *HTTPStore) UpdateDispute(ctx context.Context, account, arbitrator string, disputeID uint64, body model.Fields) error {
	return s.do(ctx, http.MethodPost, s.path(account, "arbitrators", arbitrator, "disputes", strconv.FormatUint(disputeID, 10)), body, nil)
}

func (s *HTTPStore) AddDraws(ctx context.Context, account, arbitrator string, disputeID uint64, draws []uint64, appeal uint64) error {
	body := map[string]interface{}{
		"draws":  draws,
		"appeal": appeal,
	}
	return s.do(ctx, http.MethodPost, s.path(account, "arbitrators", arbitrator, "disputes", strconv.FormatUint(disputeID, 10), "draws"), body, nil)
}

func (s *HTTPStore) PutNotification(ctx context.Context, account, txHash string, n model.Notification) error {
	body := map[string]interface{}{
		"notificationType": n.NotificationType,
		"logIndex":         n.LogIndex,
		"read":             n.Read,
		"message":          n.Message,
		"data":             n.Data,
	}
	return s.do(ctx, http.MethodPost, s.path(account, "notifications", txHash), body, nil)
}

func (s *HTTPStore) MarkNotificationRead(ctx context.Context, account, txHash string, logIndex uint64, read bool) error {
	body := map[string]interface{}{
		"logIndex": logIndex,
		"isRead":   read,
	}
	return s.do(ctx, http.MethodPost, s.path(account, "notifications", txHash, "read"), body, nil)
}

func (s *HTTPStore) UpdateLastBlock(ctx context.Context, account string, block uint64) error {
	return s.do(ctx, http.MethodPost, s.path(account, "lastBlock"), map[string]uint64{"lastBlock": block}, nil)
}

func (s *HTTPStore) UpdateSessions(ctx context.Context, account string, sessions map[string]uint64) error {
	return s.do(ctx, http.MethodPost, s.path(account, "session"), map[string]interface{}{"sessions": sessions}, nil)
}

func (s *HTTPStore) path(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, s.baseURL)
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

func (s *HTTPStore) do(ctx context.Context, method, uri string, body, out interface{}) error {
	op := method + " " + uri

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	s.logger.Debug("store request", zap.String("method", method), zap.String("uri", uri), zap.Int("status", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(payload)))}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}
	return nil
}
