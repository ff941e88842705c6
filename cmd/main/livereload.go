package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// reloadSnippet is appended to HTML pages served by the dev server. It
// reloads the page whenever the hub broadcasts after a rebuild.
const reloadSnippet = `<script>
(function () {
	var ws = new WebSocket("ws://" + location.host + "/__livereload");
	ws.onmessage = function () { location.reload(); };
})();
</script>
`

// reloadHub tracks connected browsers and pushes a reload message to all of
// them after a successful rebuild. All methods are concurrent-safe.
type reloadHub struct {
	logger *slog.Logger
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

func newReloadHub(logger *slog.Logger) *reloadHub {
	return &reloadHub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Handle upgrades a request to a websocket and keeps the connection
// registered until the browser goes away.
func (h *reloadHub) Handle(w http.ResponseWriter, r *http.Request) {
	// The dev server is local-only, so any origin is acceptable.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn("Live-reload websocket accept failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("Live-reload client connected", "remote_addr", r.RemoteAddr)

	// The client never sends anything meaningful; CloseRead notices when it
	// disconnects.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// Broadcast tells every connected browser to reload. Connections that fail
// to accept the message are dropped.
func (h *reloadHub) Broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := conn.Write(ctx, websocket.MessageText, []byte("reload"))
		cancel()
		if err != nil {
			h.logger.Debug("Dropping live-reload client", "error", err)
			delete(h.conns, conn)
			_ = conn.Close(websocket.StatusGoingAway, "write failed")
		}
	}
}
