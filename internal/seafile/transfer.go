package seafile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
)

// DownloadLink fetches a temporary direct-download URL for a file.
// reuse=1 lets the server hand back a cached link within its validity
// window. The endpoint returns the URL as a JSON-encoded string.
func (c *Client) DownloadLink(ctx context.Context, libraryID, filePath string) (string, error) {
	u := c.baseURL + "/api2/repos/" + libraryID + "/file/?p=" + url.QueryEscape(filePath) + "&reuse=1"

	resp, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return "", fmt.Errorf("seafile: download link for %s in library %s: %w", filePath, libraryID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("seafile: reading download link: %w", err)
	}

	link := unquote(body)
	if link == "" {
		return "", fmt.Errorf("%w: empty download link for %s", ErrInvalidResponse, filePath)
	}

	return link, nil
}

// Download streams file content from a previously obtained download link
// to the writer. The link is pre-authenticated; the token header is still
// sent (same host) but not required. Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, link string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, link, "", nil)
	if err != nil {
		return 0, fmt.Errorf("seafile: download: %w", err)
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("seafile: streaming download: %w", copyErr)
	}

	return n, nil
}

// UploadLink fetches a temporary upload URL for files destined under
// parentDir. Returns ErrNotFound when parentDir does not exist remotely;
// callers create the chain with Mkdir and retry.
func (c *Client) UploadLink(ctx context.Context, libraryID, parentDir string) (string, error) {
	u := c.baseURL + "/api2/repos/" + libraryID + "/upload-link/?p=" + url.QueryEscape(parentDir)

	resp, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return "", fmt.Errorf("seafile: upload link for %s in library %s: %w", parentDir, libraryID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("seafile: reading upload link: %w", err)
	}

	link := unquote(body)
	if link == "" {
		return "", fmt.Errorf("%w: empty upload link for %s", ErrInvalidResponse, parentDir)
	}

	return link, nil
}

// Upload POSTs file content to an upload link as a multipart form with
// the fields parent_dir, replace=1, and file. replace=1 makes the server
// overwrite an existing file of the same name instead of renaming.
// A 443 status maps to ErrQuotaExceeded.
func (c *Client) Upload(ctx context.Context, link, parentDir, filename string, content io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, parentDir, filename, content)
		if closeErr := mw.Close(); err == nil {
			err = closeErr
		}

		pw.CloseWithError(err)
	}()

	resp, err := c.do(ctx, http.MethodPost, link, mw.FormDataContentType(), pr)
	if err != nil {
		return fmt.Errorf("seafile: uploading %s to %s: %w", filename, parentDir, err)
	}

	resp.Body.Close()

	return nil
}

// writeUploadForm emits the multipart fields in the order Seafile's
// upload handler expects: metadata first, file part last.
func writeUploadForm(mw *multipart.Writer, parentDir, filename string, content io.Reader) error {
	if err := mw.WriteField("parent_dir", parentDir); err != nil {
		return fmt.Errorf("writing parent_dir field: %w", err)
	}

	if err := mw.WriteField("replace", "1"); err != nil {
		return fmt.Errorf("writing replace field: %w", err)
	}

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}

	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copying file content: %w", err)
	}

	return nil
}
