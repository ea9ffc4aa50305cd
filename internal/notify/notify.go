// Package notify maintains a websocket subscription to the server's
// notification endpoint and converts repo-update events into sync
// kicks. The subscription is best-effort: when the endpoint is absent
// or the connection drops, the listener retries with capped backoff and
// the periodic sync timer covers the gap.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	notificationPath = "/notification/ws"

	reconnectBase = 1 * time.Second
	reconnectMax  = 60 * time.Second

	pingPeriod  = 30 * time.Second
	pingTimeout = 5 * time.Second
)

// Kicker receives the "server changed something" signal. The sync
// trigger is the real implementation.
type Kicker interface {
	Kick()
}

// message is the notification server's envelope. Only repo-update is
// acted on; everything else is ignored.
type message struct {
	Type    string `json:"type"`
	Content struct {
		RepoID string `json:"repo_id"`
	} `json:"content"`
}

// Listener subscribes to server-side change notifications.
type Listener struct {
	url    string
	token  string
	kicker Kicker
	logger *slog.Logger

	// dial is injectable for tests.
	dial func(ctx context.Context, url string, opts *websocket.DialOptions) (*websocket.Conn, *http.Response, error)
}

// NewListener creates a Listener for the given server base URL. The
// websocket URL is derived by swapping the scheme and appending the
// notification path.
func NewListener(serverURL, token string, kicker Kicker, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		url:    wsURL(serverURL),
		token:  token,
		kicker: kicker,
		logger: logger,
		dial:   websocket.Dial,
	}
}

// wsURL maps an http(s) base URL onto its ws(s) notification endpoint.
func wsURL(serverURL string) string {
	u := strings.TrimSuffix(serverURL, "/")

	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	return u + notificationPath
}

// Run maintains the subscription until the context is canceled. Connect
// failures are logged at debug level only; servers without a
// notification service are common and the daemon works without one.
func (l *Listener) Run(ctx context.Context) error {
	delay := reconnectBase

	for {
		connected, err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		// A connection that got established resets the backoff; only
		// consecutive dial failures escalate it.
		if connected {
			delay = reconnectBase
		}

		if err != nil {
			l.logger.Debug("notification connection lost",
				slog.String("url", l.url),
				slog.String("error", err.Error()),
			)
		}

		// Jittered backoff between attempts.
		sleep := delay/2 + time.Duration(rand.Int63n(int64(delay)/2+1))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}

		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// listenOnce dials, then reads events until the connection fails. The
// bool reports whether a connection was established at all.
func (l *Listener) listenOnce(ctx context.Context) (bool, error) {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Token "+l.token)
	}

	conn, _, err := l.dial(ctx, l.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	l.logger.Info("notification subscription established", slog.String("url", l.url))

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()

	go l.pingLoop(pingCtx, conn)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}

		l.handleMessage(raw)
	}
}

// pingLoop keeps the connection alive through idle proxies.
func (l *Listener) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()

			if err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one event and kicks the trigger for library
// updates. Malformed payloads are dropped.
func (l *Listener) handleMessage(raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.logger.Debug("undecodable notification", slog.String("error", err.Error()))
		return
	}

	if msg.Type != "repo-update" {
		return
	}

	l.logger.Debug("library update notification", slog.String("library_id", msg.Content.RepoID))
	l.kicker.Kick()
}
