package seafile

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client pointed at the given server with retry
// sleeps disabled.
func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()

	c := NewClient(srv.URL, srv.Client(), token, nil)
	c.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return c
}

func TestLogin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api2/auth-token/", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		assert.Equal(t, "hunter2", r.PostForm.Get("password"))

		w.Write([]byte(`{"token":"24fd3c026886e3121b2ca630805ed425c272cb96"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")

	token, err := c.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "24fd3c026886e3121b2ca630805ed425c272cb96", token)
}

func TestLoginInvalidCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"non_field_errors":["Unable to login with provided credentials."]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")

	_, err := c.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/auth/ping/", r.URL.Path)
		assert.Equal(t, "Token tok123", r.Header.Get("Authorization"))

		w.Write([]byte(`"pong"`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok123")

	require.NoError(t, c.Ping(context.Background()))
}

func TestListLibrariesBareArray(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/repos/", r.URL.Path)

		w.Write([]byte(`[
			{"id":"lib-1","name":"Documents","encrypted":false,"permission":"rw","size":1024,"mtime":1700000000},
			{"id":"lib-2","name":"Shared","encrypted":true,"permission":"r","size":0,"mtime":1700000100}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	libs, err := c.ListLibraries(context.Background())
	require.NoError(t, err)
	require.Len(t, libs, 2)

	assert.Equal(t, "Documents", libs[0].Name)
	assert.False(t, libs[0].ReadOnly())
	assert.True(t, libs[1].Encrypted)
	assert.True(t, libs[1].ReadOnly())
}

func TestSetLibraryPasswordIncorrect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error_msg":"Incorrect password"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	err := c.SetLibraryPassword(context.Background(), "lib-2", "nope")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
}

func TestListRecursive(t *testing.T) {
	t.Parallel()

	// Two-level tree: /docs (dir) containing a.txt, plus /top.txt.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api2/repos/lib-1/dir/", r.URL.Path)

		switch r.URL.Query().Get("p") {
		case "/":
			w.Write([]byte(`[
				{"id":"d1","name":"docs","type":"dir","mtime":100,"size":0},
				{"id":"f0","name":"top.txt","type":"file","mtime":90,"size":5}
			]`))
		case "/docs":
			w.Write([]byte(`[
				{"id":"f1","name":"a.txt","type":"file","mtime":100,"size":10}
			]`))
		default:
			t.Errorf("unexpected listing path %q", r.URL.Query().Get("p"))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	entries, err := c.ListRecursive(context.Background(), "lib-1", "/")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Directory before its contents, server order preserved.
	assert.Equal(t, "/docs", entries[0].Path)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "/docs/a.txt", entries[1].Path)
	assert.Equal(t, "f1", entries[1].ObjectID)
	assert.Equal(t, "/top.txt", entries[2].Path)
}

func TestDownloadLinkUnquoted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/repos/lib-1/file/", r.URL.Path)
		assert.Equal(t, "/docs/a.txt", r.URL.Query().Get("p"))
		assert.Equal(t, "1", r.URL.Query().Get("reuse"))

		w.Write([]byte(`"https://dl.example.com/files/abc/a.txt"`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	link, err := c.DownloadLink(context.Background(), "lib-1", "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://dl.example.com/files/abc/a.txt", link)
}

func TestDownloadStreams(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("file content"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	var buf strings.Builder

	n, err := c.Download(context.Background(), srv.URL+"/files/abc", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, "file content", buf.String())
}

func TestUploadMultipartForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "/docs", r.MultipartForm.Value["parent_dir"][0])
		assert.Equal(t, "1", r.MultipartForm.Value["replace"][0])

		fh := r.MultipartForm.File["file"][0]
		assert.Equal(t, "a.txt", fh.Filename)

		f, err := fh.Open()
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))

		w.Write([]byte(`"ok"`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	err := c.Upload(context.Background(), srv.URL+"/upload", "/docs", "a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
}

func TestUploadQuotaExceeded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statusQuotaExceeded)
		w.Write([]byte(`"Out of quota."`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	err := c.Upload(context.Background(), srv.URL+"/upload", "/", "big.bin", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestUploadLinkNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error_msg":"Folder not found."}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	_, err := c.UploadLink(context.Background(), "lib-1", "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetryOnServerError(t *testing.T) {
	t.Parallel()

	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "boom", http.StatusServiceUnavailable)
			return
		}

		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	libs, err := c.ListLibraries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, libs)
	assert.Equal(t, 3, calls)
}

func TestNoRetryOnNotFound(t *testing.T) {
	t.Parallel()

	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")

	_, err := c.ListDirectory(context.Background(), "lib-1", "/")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want error
	}{
		{http.StatusOK, nil},
		{http.StatusCreated, nil},
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrPermissionDenied},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrThrottled},
		{statusQuotaExceeded, ErrQuotaExceeded},
		{http.StatusInternalServerError, ErrServerError},
		{http.StatusBadGateway, ErrServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.code), "status %d", tt.code)
	}
}

func TestUnquote(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://x/y", unquote([]byte(`"https://x/y"`)))
	assert.Equal(t, "https://x/y", unquote([]byte("https://x/y\n")))
	assert.Equal(t, "", unquote([]byte(`""`)))
}
