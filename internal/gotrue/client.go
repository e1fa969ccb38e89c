// Package gotrue is a minimal client for the hosted auth service's
// GoTrue-compatible HTTP API: password grants for end users and the
// service-role admin surface for user lookups.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// User is the auth service's view of an account. AppMetadata is
// service-controlled (role assignments live here); UserMetadata is
// user-controlled and never trusted for authorization.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("gotrue: http %d: %s", e.StatusCode, msg)
}

func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("gotrue: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("gotrue: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("gotrue: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("gotrue: invalid base url host")
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// LoginPassword exchanges email/password for the account it belongs to.
// Credential rejection surfaces as *HTTPError with a 4xx status.
func (c *Client) LoginPassword(ctx context.Context, email string, password string) (User, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return User{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return User{}, readHTTPError(resp)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		User        User   `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return User{}, err
	}
	if out.User.ID == "" {
		return User{}, errors.New("gotrue: token response missing user")
	}
	return out.User, nil
}

// AdminGetUser fetches an account via the privileged admin surface.
func (c *Client) AdminGetUser(ctx context.Context, serviceRoleKey string, userID string) (User, error) {
	serviceRoleKey = strings.TrimSpace(serviceRoleKey)
	if serviceRoleKey == "" {
		return User{}, errors.New("gotrue: missing service role key")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, errors.New("gotrue: missing user id")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+serviceRoleKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return User{}, readHTTPError(resp)
	}

	var out User
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return User{}, err
	}
	return out, nil
}

// StringClaim returns a trimmed string value from metadata, if present.
func StringClaim(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

func readHTTPError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	msg := ""
	if err := json.Unmarshal(b, &payload); err == nil {
		switch {
		case payload.Msg != "":
			msg = payload.Msg
		case payload.ErrorDescription != "":
			msg = payload.ErrorDescription
		default:
			msg = payload.Error
		}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}
