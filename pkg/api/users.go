package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// Profile returns the authenticated user. The body is the user object,
// optionally wrapped as {user: ...}.
func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	r, _ := jsonRequest("profile", http.MethodGet, "/users/profile", nil, true)
	var raw map[string]json.RawMessage
	if err := c.decode(ctx, r, &raw); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if inner, ok := raw["user"]; ok && len(inner) > 0 && inner[0] == '{' {
		payload = inner
	}
	var u domain.User
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	return &u, nil
}

// UserImages lists generated images, newest first. source is "all" or a
// model category as the API defines it.
func (c *Client) UserImages(ctx context.Context, page, limit int, source string) (*domain.ImagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if source == "" {
		source = "all"
	}
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))
	v.Set("source", source)
	r, _ := jsonRequest("user_images", http.MethodGet, "/users/user-images?"+v.Encode(), nil, true)
	var out domain.ImagePage
	if err := c.decode(ctx, r, &out); err != nil {
		return nil, err
	}
	if out.Page == 0 {
		out.Page = page
	}
	return &out, nil
}

// Registration is the sign-up payload.
type Registration struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

var errNoToken = errors.New("auth response carried no token")

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.tokenCall(ctx, "login", "/auth/login", map[string]string{"email": email, "password": password})
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, reg Registration) (string, error) {
	return c.tokenCall(ctx, "register", "/auth/register", reg)
}

// GoogleLogin exchanges a Google access token for an API token.
func (c *Client) GoogleLogin(ctx context.Context, accessToken string) (string, error) {
	return c.tokenCall(ctx, "google_login", "/auth/google", map[string]string{"token": accessToken})
}

func (c *Client) tokenCall(ctx context.Context, op, path string, payload any) (string, error) {
	r, err := jsonRequest(op, http.MethodPost, path, payload, false)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.decode(ctx, r, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errNoToken
	}
	return out.Token, nil
}
