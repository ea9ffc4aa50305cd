package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingKicker struct {
	kicks atomic.Int64
}

func (k *countingKicker) Kick() { k.kicks.Add(1) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWsURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://seafile.example.com", "wss://seafile.example.com/notification/ws"},
		{"https://seafile.example.com/", "wss://seafile.example.com/notification/ws"},
		{"http://localhost:8000", "ws://localhost:8000/notification/ws"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, wsURL(tc.in))
	}
}

func TestListenerKicksOnRepoUpdate(t *testing.T) {
	t.Parallel()

	var gotAuth atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()

		msgs := []string{
			`{"type":"repo-update","content":{"repo_id":"lib-1"}}`,
			`{"type":"heartbeat"}`,
			`not json`,
			`{"type":"repo-update","content":{"repo_id":"lib-2"}}`,
		}
		for _, m := range msgs {
			if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}

		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	kicker := &countingKicker{}
	l := NewListener(srv.URL, "tok123", kicker, testLogger())

	require.True(t, strings.HasPrefix(l.url, "ws://"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	// Two repo-update events, one heartbeat, one junk line.
	require.Eventually(t, func() bool {
		return kicker.kicks.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "Token tok123", gotAuth.Load())

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestListenerStopsWhenServerUnreachable(t *testing.T) {
	t.Parallel()

	kicker := &countingKicker{}
	l := NewListener("http://127.0.0.1:1", "", kicker, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	// Unreachable endpoint: the listener retries quietly, then stops on
	// cancel without surfacing an error.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	assert.Zero(t, kicker.kicks.Load())
}
