package seafile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ListLibraries returns the libraries visible to the authenticated user,
// in server order. Seafile returns the list as a bare JSON array.
func (c *Client) ListLibraries(ctx context.Context) ([]Library, error) {
	var libs []Library
	if err := c.apiGet(ctx, "/api2/repos/", &libs); err != nil {
		return nil, fmt.Errorf("seafile: listing libraries: %w", err)
	}

	return libs, nil
}

// SetLibraryPassword supplies the decryption password for an encrypted
// library so subsequent file operations on it succeed. Returns
// ErrIncorrectPassword when the server rejects the password.
func (c *Client) SetLibraryPassword(ctx context.Context, libraryID, password string) error {
	form := url.Values{}
	form.Set("password", password)

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/api2/repos/"+libraryID+"/",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		if errors.Is(err, ErrBadRequest) {
			return ErrIncorrectPassword
		}

		return fmt.Errorf("seafile: setting password for library %s: %w", libraryID, err)
	}

	resp.Body.Close()

	return nil
}
