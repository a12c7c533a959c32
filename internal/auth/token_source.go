package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrNotAuthenticated = errors.New("not authenticated: no refresh token available")

// RefreshTokenSource holds the access/refresh token pair issued at login and
// exchanges the refresh token for a new access token on demand. Concurrent
// refreshes coalesce into a single upstream call; every waiter observes the
// same outcome.
type RefreshTokenSource struct {
	refreshURL string
	client     *http.Client
	log        *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	access  string
	refresh string
	expiry  time.Time
}

func NewRefreshTokenSource(baseURL string, client *http.Client, log *zap.Logger) *RefreshTokenSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.L()
	}
	return &RefreshTokenSource{
		refreshURL: strings.TrimRight(baseURL, "/") + "/auth/token/refresh/",
		client:     client,
		log:        log,
	}
}

// SetTokens installs the pair issued at login.
func (s *RefreshTokenSource) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	s.expiry = tokenExpiry(access)
}

// Clear drops both tokens at logout.
func (s *RefreshTokenSource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	s.expiry = time.Time{}
}

// Token returns the cached access token, refreshing first when none is
// cached or the cached one has expired.
func (s *RefreshTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	access, expiry := s.access, s.expiry
	s.mu.Unlock()

	if access != "" && (expiry.IsZero() || time.Now().Before(expiry)) {
		return access, nil
	}
	return s.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new access token. Callers racing
// into Refresh share one in-flight exchange. The exchange runs detached from
// the first caller's context: one impatient caller cancelling must not fail
// every coalesced waiter. The HTTP client's timeout still bounds the call.
func (s *RefreshTokenSource) Refresh(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		return s.doRefresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *RefreshTokenSource) doRefresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	refresh := s.refresh
	s.mu.Unlock()

	if refresh == "" {
		return "", ErrNotAuthenticated
	}

	payload, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("token refresh rejected", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("token refresh failed: HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	if parsed.Access == "" {
		return "", errors.New("token refresh failed: empty access token")
	}

	s.mu.Lock()
	s.access = parsed.Access
	s.expiry = tokenExpiry(parsed.Access)
	if parsed.Refresh != "" {
		s.refresh = parsed.Refresh
	}
	s.mu.Unlock()

	s.log.Debug("access token refreshed")
	return parsed.Access, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend holds the signing key, we only need the deadline. Returns the zero
// time for opaque tokens.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
