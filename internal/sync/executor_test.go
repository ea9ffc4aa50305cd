package sync

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasync/seasync/internal/seafile"
)

// fakeRemote is a scriptable RemoteClient. Fields left nil default to
// success with empty payloads.
type fakeRemote struct {
	files map[string]string // library path -> downloaded content

	uploadLinkErrs map[string][]error // parentDir -> errors returned in order
	mkdirErr       map[string]error
	deleteFileErr  map[string]error
	deleteDirErr   map[string]error

	mkdirs      []string
	uploads     []string // "parentDir/filename"
	uploadBody  map[string]string
	deleteFiles []string
	deleteDirs  []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:          make(map[string]string),
		uploadLinkErrs: make(map[string][]error),
		mkdirErr:       make(map[string]error),
		deleteFileErr:  make(map[string]error),
		deleteDirErr:   make(map[string]error),
		uploadBody:     make(map[string]string),
	}
}

func (f *fakeRemote) DownloadLink(_ context.Context, _, filePath string) (string, error) {
	if _, ok := f.files[filePath]; !ok {
		return "", seafile.ErrNotFound
	}

	return "link:" + filePath, nil
}

func (f *fakeRemote) Download(_ context.Context, link string, w io.Writer) (int64, error) {
	content, ok := f.files[link[len("link:"):]]
	if !ok {
		return 0, seafile.ErrNotFound
	}

	n, err := io.WriteString(w, content)

	return int64(n), err
}

func (f *fakeRemote) UploadLink(_ context.Context, _, parentDir string) (string, error) {
	if errs := f.uploadLinkErrs[parentDir]; len(errs) > 0 {
		err := errs[0]
		f.uploadLinkErrs[parentDir] = errs[1:]

		if err != nil {
			return "", err
		}
	}

	return "upload:" + parentDir, nil
}

func (f *fakeRemote) Upload(_ context.Context, _, parentDir, filename string, content io.Reader) error {
	body, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	key := path.Join(parentDir, filename)
	f.uploads = append(f.uploads, key)
	f.uploadBody[key] = string(body)

	return nil
}

func (f *fakeRemote) Mkdir(_ context.Context, _, dirPath string) error {
	f.mkdirs = append(f.mkdirs, dirPath)

	return f.mkdirErr[dirPath]
}

func (f *fakeRemote) DeleteFile(_ context.Context, _, filePath string) error {
	f.deleteFiles = append(f.deleteFiles, filePath)

	return f.deleteFileErr[filePath]
}

func (f *fakeRemote) DeleteDir(_ context.Context, _, dirPath string) error {
	f.deleteDirs = append(f.deleteDirs, dirPath)

	return f.deleteDirErr[dirPath]
}

var _ RemoteClient = (*fakeRemote)(nil)

func requireAllOK(t *testing.T, results []ActionResult) {
	t.Helper()

	for _, r := range results {
		require.NoError(t, r.Err, "action %s %s", r.Action.Type, r.Action.Path)
	}
}

func TestExecuteCreateDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	e := NewExecutor(newFakeRemote(), testLogger())

	results := e.Execute(context.Background(), "lib", root, []Action{
		{Type: ActionCreateDirectory, Path: "/a/b", IsDir: true},
	})
	requireAllOK(t, results)

	info, err := os.Stat(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExecuteDownload(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	remote := newFakeRemote()
	remote.files["/docs/a.txt"] = "hello"

	e := NewExecutor(remote, testLogger())

	results := e.Execute(context.Background(), "lib", root, []Action{
		{Type: ActionDownload, Path: "/docs/a.txt", Mtime: 1700000000},
	})
	requireAllOK(t, results)

	target := filepath.Join(root, "docs", "a.txt")

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0), info.ModTime())

	// No partial file left behind.
	_, err = os.Stat(target + partialSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExecuteDownloadFailureLeavesNoPartial(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	remote := newFakeRemote()

	e := NewExecutor(remote, testLogger())

	results := e.Execute(context.Background(), "lib", root, []Action{
		{Type: ActionDownload, Path: "/missing.txt", Mtime: 100},
	})

	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, seafile.ErrNotFound)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecuteUpload(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "a.txt"), "payload")

	remote := newFakeRemote()
	e := NewExecutor(remote, testLogger())

	results := e.Execute(context.Background(), "lib", root, []Action{
		{Type: ActionUpload, Path: "/docs/a.txt"},
	})
	requireAllOK(t, results)

	require.Equal(t, []string{"/docs/a.txt"}, remote.uploads)
	assert.Equal(t, "payload", remote.uploadBody["/docs/a.txt"])
	assert.Empty(t, remote.mkdirs)
}

func TestExecuteUploadCreatesMissingParents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", "f.txt"), "deep")

	remote := newFakeRemote()
	// First link request fails because the parent chain is absent, the
	// retry after mkdir succeeds.
	remote.uploadLinkErrs["/a/b"] = []error{seafile.ErrNotFound}
	// /a already exists remotely.
	remote.mkdirErr["/a"] = seafile.ErrConflict

	e := NewExecutor(remote, testLogger())

	results := e.Execute(context.Background(), "lib", root, []Action{
		{Type: ActionUpload, Path: "/a/b/f.txt"},
	})
	requireAllOK(t, results)

	assert.Equal(t, []string{"/a", "/a/b"}, remote.mkdirs)
	assert.Equal(t, []string{"/a/b/f.txt"}, remote.uploads)
}

func TestExecuteDeleteLocal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "gone", "inner.txt"), "x")

	e := NewExecutor(newFakeRemote(), testLogger())

	results := e.Execute(context.Background(), "lib", root, []Action{
		{Type: ActionDeleteLocal, Path: "/gone", IsDir: true},
		// Already absent: still success.
		{Type: ActionDeleteLocal, Path: "/never-existed.txt"},
	})
	requireAllOK(t, results)

	_, err := os.Stat(filepath.Join(root, "gone"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExecuteDeleteRemote(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	// Another client already removed this one.
	remote.deleteFileErr["/raced.txt"] = seafile.ErrNotFound

	e := NewExecutor(remote, testLogger())

	results := e.Execute(context.Background(), "lib", t.TempDir(), []Action{
		{Type: ActionDeleteRemote, Path: "/a.txt"},
		{Type: ActionDeleteRemote, Path: "/dir", IsDir: true},
		{Type: ActionDeleteRemote, Path: "/raced.txt"},
	})
	requireAllOK(t, results)

	assert.Equal(t, []string{"/a.txt", "/raced.txt"}, remote.deleteFiles)
	assert.Equal(t, []string{"/dir"}, remote.deleteDirs)
}

func TestExecuteContinuesPastFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.txt"), "ok")

	remote := newFakeRemote()
	remote.deleteFileErr["/bad.txt"] = errors.New("server exploded")

	e := NewExecutor(remote, testLogger())

	results := e.Execute(context.Background(), "lib", root, []Action{
		{Type: ActionDeleteRemote, Path: "/bad.txt"},
		{Type: ActionUpload, Path: "/ok.txt"},
	})

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, []string{"/ok.txt"}, remote.uploads)
}

func TestExecuteCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	remote := newFakeRemote()
	e := NewExecutor(remote, testLogger())

	results := e.Execute(ctx, "lib", t.TempDir(), []Action{
		{Type: ActionDeleteRemote, Path: "/a.txt"},
	})

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Empty(t, remote.deleteFiles)
}
