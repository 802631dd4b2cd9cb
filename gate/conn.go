package gate

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"qq-farm-runtime/errors"
)

// Conn abstracts the websocket connection for testability.
// The real implementation wraps gorilla/websocket; tests use an
// in-memory frame queue.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dial opens the gate websocket for one account. The login code is a
// credential and never appears in logs or errors.
func Dial(ctx context.Context, cfg Config, code string) (Conn, error) {
	if code == "" {
		return nil, errors.New("missing login code")
	}

	u, err := url.Parse(cfg.GatewayURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid gateway url")
	}
	q := url.Values{}
	q.Set("platform", cfg.Platform)
	q.Set("os", cfg.OS)
	q.Set("ver", cfg.ClientVersion)
	q.Set("code", code)
	q.Set("openID", "")
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("User-Agent", cfg.UserAgent)
	header.Set("Origin", cfg.Origin)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket connect failed: invalid response status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "websocket connect failed")
	}
	return conn, nil
}
