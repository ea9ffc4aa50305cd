package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/seasync/seasync/internal/seafile"
)

// partialSuffix marks in-flight downloads so an interrupted transfer
// never leaves a truncated file at the final path.
const partialSuffix = ".partial"

// RemoteClient is the slice of the Seafile API the executor depends on.
// Defined at the consumer; *seafile.Client is the real implementation.
type RemoteClient interface {
	DownloadLink(ctx context.Context, libraryID, filePath string) (string, error)
	Download(ctx context.Context, link string, w io.Writer) (int64, error)
	UploadLink(ctx context.Context, libraryID, parentDir string) (string, error)
	Upload(ctx context.Context, link, parentDir, filename string, content io.Reader) error
	Mkdir(ctx context.Context, libraryID, dirPath string) error
	DeleteFile(ctx context.Context, libraryID, filePath string) error
	DeleteDir(ctx context.Context, libraryID, dirPath string) error
}

// ActionResult pairs a planned action with its execution outcome.
type ActionResult struct {
	Action Action
	Err    error
}

// Executor runs a plan action by action against the remote client and
// the local filesystem. A single action's failure is captured in its
// result; execution continues with the next action.
type Executor struct {
	client RemoteClient
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(client RemoteClient, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{client: client, logger: logger}
}

// Execute runs the plan in order. localRoot is the library's local root
// directory; action paths are library-absolute and mapped beneath it.
func (e *Executor) Execute(ctx context.Context, libraryID, localRoot string, plan []Action) []ActionResult {
	results := make([]ActionResult, 0, len(plan))

	for i := range plan {
		action := plan[i]

		if err := ctx.Err(); err != nil {
			results = append(results, ActionResult{Action: action, Err: err})
			continue
		}

		err := e.runAction(ctx, libraryID, localRoot, action)
		if err != nil {
			e.logger.Warn("action failed",
				slog.String("action", action.Type.String()),
				slog.String("path", action.Path),
				slog.String("error", err.Error()),
			)
		} else {
			e.logger.Debug("action complete",
				slog.String("action", action.Type.String()),
				slog.String("path", action.Path),
			)
		}

		results = append(results, ActionResult{Action: action, Err: err})
	}

	return results
}

func (e *Executor) runAction(ctx context.Context, libraryID, localRoot string, action Action) error {
	switch action.Type {
	case ActionCreateDirectory:
		return e.createDirectory(localRoot, action.Path)
	case ActionDownload:
		return e.download(ctx, libraryID, localRoot, action)
	case ActionUpload:
		return e.upload(ctx, libraryID, localRoot, action.Path)
	case ActionDeleteLocal:
		return e.deleteLocal(localRoot, action.Path)
	case ActionDeleteRemote:
		return e.deleteRemote(ctx, libraryID, action)
	default:
		return fmt.Errorf("sync: unknown action type %d", action.Type)
	}
}

// localPath maps a library-absolute path onto the local root.
func localPath(localRoot, libPath string) string {
	return filepath.Join(localRoot, filepath.FromSlash(strings.TrimPrefix(libPath, "/")))
}

func (e *Executor) createDirectory(localRoot, libPath string) error {
	target := localPath(localRoot, libPath)

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("sync: creating directory %s: %w", target, err)
	}

	return nil
}

// download streams the remote file to <target>.partial, then renames it
// over the target and stamps the remote mtime so the next cycle sees
// both sides in agreement.
func (e *Executor) download(ctx context.Context, libraryID, localRoot string, action Action) error {
	link, err := e.client.DownloadLink(ctx, libraryID, action.Path)
	if err != nil {
		return err
	}

	target := localPath(localRoot, action.Path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("sync: creating parent for %s: %w", target, err)
	}

	partial := target + partialSuffix

	f, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("sync: creating partial file %s: %w", partial, err)
	}

	if _, err := e.client.Download(ctx, link, f); err != nil {
		f.Close()
		os.Remove(partial)

		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("sync: closing partial file %s: %w", partial, err)
	}

	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return fmt.Errorf("sync: renaming %s into place: %w", partial, err)
	}

	mtime := time.Unix(action.Mtime, 0)
	if err := os.Chtimes(target, mtime, mtime); err != nil {
		return fmt.Errorf("sync: setting mtime on %s: %w", target, err)
	}

	return nil
}

// upload obtains an upload link for the file's parent directory and
// POSTs the content. A not-found on the link request means the parent
// chain does not exist remotely yet; it is created top-down and the link
// request retried once.
func (e *Executor) upload(ctx context.Context, libraryID, localRoot, libPath string) error {
	parentDir := path.Dir(libPath)
	filename := path.Base(libPath)

	link, err := e.client.UploadLink(ctx, libraryID, parentDir)
	if errors.Is(err, seafile.ErrNotFound) {
		if mkErr := e.mkdirRemoteChain(ctx, libraryID, parentDir); mkErr != nil {
			return mkErr
		}

		link, err = e.client.UploadLink(ctx, libraryID, parentDir)
	}

	if err != nil {
		return err
	}

	source := localPath(localRoot, libPath)

	f, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("sync: opening %s for upload: %w", source, err)
	}
	defer f.Close()

	return e.client.Upload(ctx, link, parentDir, filename, f)
}

// mkdirRemoteChain creates every missing ancestor of dirPath top-down.
// Mkdir on an existing directory is tolerated so the chain walk does not
// need per-segment existence checks.
func (e *Executor) mkdirRemoteChain(ctx context.Context, libraryID, dirPath string) error {
	if dirPath == "/" || dirPath == "." || dirPath == "" {
		return nil
	}

	segments := strings.Split(strings.TrimPrefix(dirPath, "/"), "/")

	current := ""
	for _, seg := range segments {
		current += "/" + seg

		if err := e.client.Mkdir(ctx, libraryID, current); err != nil {
			if errors.Is(err, seafile.ErrConflict) {
				continue
			}

			return err
		}
	}

	return nil
}

// deleteLocal is best-effort removal; an already-missing path is not an
// error. Directories are removed with their contents.
func (e *Executor) deleteLocal(localRoot, libPath string) error {
	target := localPath(localRoot, libPath)

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("sync: removing %s: %w", target, err)
	}

	return nil
}

// deleteRemote dispatches to the file or directory endpoint based on
// what the baseline recorded. A not-found means another client already
// removed it; that is success.
func (e *Executor) deleteRemote(ctx context.Context, libraryID string, action Action) error {
	var err error
	if action.IsDir {
		err = e.client.DeleteDir(ctx, libraryID, action.Path)
	} else {
		err = e.client.DeleteFile(ctx, libraryID, action.Path)
	}

	if err != nil && !errors.Is(err, seafile.ErrNotFound) {
		return err
	}

	return nil
}
