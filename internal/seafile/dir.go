package seafile

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// ListDirectory returns the immediate children of dirPath within a
// library. dirPath is absolute ("/" for the root). The server returns a
// bare JSON array in its own stable order, which is preserved.
func (c *Client) ListDirectory(ctx context.Context, libraryID, dirPath string) ([]DirEntry, error) {
	var entries []DirEntry
	if err := c.apiGet(ctx, "/api2/repos/"+libraryID+"/dir/?p="+url.QueryEscape(dirPath), &entries); err != nil {
		return nil, fmt.Errorf("seafile: listing %s in library %s: %w", dirPath, libraryID, err)
	}

	return entries, nil
}

// ListRecursive flattens the whole library tree rooted at dirPath into
// Entry values with full paths. Traversal is depth-first: each directory's
// children are emitted in server order, recursing into subdirectories as
// they are encountered. A directory entry is emitted before its contents.
func (c *Client) ListRecursive(ctx context.Context, libraryID, dirPath string) ([]Entry, error) {
	children, err := c.ListDirectory(ctx, libraryID, dirPath)
	if err != nil {
		return nil, err
	}

	var out []Entry

	for _, child := range children {
		full := path.Join(dirPath, child.Name)

		out = append(out, Entry{
			Path:     full,
			ObjectID: child.ID,
			Mtime:    child.Mtime,
			Size:     child.Size,
			IsDir:    child.IsDir(),
		})

		if child.IsDir() {
			sub, err := c.ListRecursive(ctx, libraryID, full)
			if err != nil {
				return nil, err
			}

			out = append(out, sub...)
		}
	}

	return out, nil
}

// Mkdir creates a directory at dirPath. The parent must already exist;
// callers create chains top-down.
func (c *Client) Mkdir(ctx context.Context, libraryID, dirPath string) error {
	form := url.Values{}
	form.Set("operation", "mkdir")

	u := c.baseURL + "/api2/repos/" + libraryID + "/dir/?p=" + url.QueryEscape(dirPath)

	resp, err := c.do(ctx, http.MethodPost, u,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("seafile: mkdir %s in library %s: %w", dirPath, libraryID, err)
	}

	resp.Body.Close()

	return nil
}

// DeleteFile removes a file from the library.
func (c *Client) DeleteFile(ctx context.Context, libraryID, filePath string) error {
	u := c.baseURL + "/api2/repos/" + libraryID + "/file/?p=" + url.QueryEscape(filePath)

	resp, err := c.do(ctx, http.MethodDelete, u, "", nil)
	if err != nil {
		return fmt.Errorf("seafile: deleting file %s in library %s: %w", filePath, libraryID, err)
	}

	resp.Body.Close()

	return nil
}

// DeleteDir removes a directory (and its contents) from the library.
func (c *Client) DeleteDir(ctx context.Context, libraryID, dirPath string) error {
	u := c.baseURL + "/api2/repos/" + libraryID + "/dir/?p=" + url.QueryEscape(dirPath)

	resp, err := c.do(ctx, http.MethodDelete, u, "", nil)
	if err != nil {
		return fmt.Errorf("seafile: deleting directory %s in library %s: %w", dirPath, libraryID, err)
	}

	resp.Body.Close()

	return nil
}
