package seafile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidCredentials is returned by Login when the server rejects the
// username/password pair.
var ErrInvalidCredentials = errors.New("seafile: invalid credentials")

// Login exchanges a username and password for an API token. The token is
// static; there is no refresh or expiry. The client does not retain it;
// callers store it in the secret store and construct a new client with it.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/api2/auth-token/",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		if errors.Is(err, ErrBadRequest) {
			return "", ErrInvalidCredentials
		}

		return "", fmt.Errorf("seafile: login: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Token string `json:"token"`
	}
	if err := decodeBody(resp.Body, &parsed); err != nil {
		return "", err
	}

	if parsed.Token == "" {
		return "", fmt.Errorf("%w: login response missing token", ErrInvalidResponse)
	}

	return parsed.Token, nil
}

// Ping verifies that the client's token is accepted by the server.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/api2/auth/ping/", "", nil)
	if err != nil {
		return fmt.Errorf("seafile: ping: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("seafile: ping: reading body: %w", err)
	}

	if !strings.Contains(string(body), "pong") {
		return fmt.Errorf("%w: ping returned %q", ErrInvalidResponse, string(body))
	}

	return nil
}
