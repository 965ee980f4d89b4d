package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"leaderboard/internal/models"
)

// remoteProfile matches the identity service's profile payload
type remoteProfile struct {
	UserID      string               `json:"user_id"`
	Role        models.Role          `json:"role"`
	DisplayName string               `json:"display_name"`
	Points      int                  `json:"points"`
	Badges      []models.EarnedBadge `json:"badges"`
}

type appendBadgesRequest struct {
	Badges []models.EarnedBadge `json:"badges"`
}

// HTTPSource reads profiles from a remote identity service.
// Requests authenticate with a dedicated service token.
type HTTPSource struct {
	baseURL      *url.URL
	serviceToken string
	httpClient   *http.Client
}

// NewHTTPSource validates the base URL once at construction time
func NewHTTPSource(baseURL, serviceToken string, timeout time.Duration) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid profile service URL %q: scheme and host required", baseURL)
	}
	return &HTTPSource{
		baseURL:      base,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (s *HTTPSource) profileURL(userID string, role models.Role, suffix ...string) string {
	parts := append([]string{"profiles", string(role), userID}, suffix...)
	return s.baseURL.JoinPath(parts...).String()
}

func (s *HTTPSource) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.serviceToken != "" {
		req.Header.Set("X-Service-Token", s.serviceToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile service request %s %s: %w", method, target, err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("profile service returned %d for %s: %s", resp.StatusCode, target, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode profile response: %w", err)
	}
	return nil
}

func (s *HTTPSource) fetch(ctx context.Context, userID string, role models.Role) (*remoteProfile, error) {
	var p remoteProfile
	if err := s.do(ctx, http.MethodGet, s.profileURL(userID, role), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPoints returns the authoritative points, floored at zero
func (s *HTTPSource) GetPoints(ctx context.Context, userID string, role models.Role) (int, error) {
	p, err := s.fetch(ctx, userID, role)
	if err != nil {
		return 0, err
	}
	return models.ClampPoints(p.Points), nil
}

// GetDisplayName returns the profile's display name
func (s *HTTPSource) GetDisplayName(ctx context.Context, userID string, role models.Role) (string, error) {
	p, err := s.fetch(ctx, userID, role)
	if err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

// GetBadges returns the profile's badge log
func (s *HTTPSource) GetBadges(ctx context.Context, userID string, role models.Role) ([]models.EarnedBadge, error) {
	p, err := s.fetch(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	return p.Badges, nil
}

// AppendBadges posts newly earned badges; the service appends them in order
func (s *HTTPSource) AppendBadges(ctx context.Context, userID string, role models.Role, badges ...models.EarnedBadge) error {
	if len(badges) == 0 {
		return nil
	}
	return s.do(ctx, http.MethodPost, s.profileURL(userID, role, "badges"), appendBadgesRequest{Badges: badges}, nil)
}
