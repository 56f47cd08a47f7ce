package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"cdpproxy/core/types"
	"cdpproxy/indexer"
)

const wsWriteTimeout = 10 * time.Second

var errNoIndexer = errors.New("event index disabled")

func (s *server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, errNoIndexer)
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{
		Type:    q.Get("type"),
		VaultID: q.Get("vault"),
		Account: q.Get("account"),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid from sequence"))
			return
		}
		filter.FromSequence = from
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		filter.Limit = limit
	}
	records, err := s.indexer.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]*types.Event, 0, len(records))
	for _, rec := range records {
		ev, err := rec.Event()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, ev)
	}
	writeJSON(w, http.StatusOK, out)
}

// streamEvents pushes committed events to a websocket client, optionally
// filtered by a comma separated list of event types.
func (s *server) streamEvents(w http.ResponseWriter, r *http.Request) {
	var kinds []string
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		for _, kind := range strings.Split(raw, ",") {
			if kind = strings.TrimSpace(kind); kind != "" {
				kinds = append(kinds, kind)
			}
		}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.hub.Subscribe(kinds)
	defer cancel()
	if err := streamUpdates(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamUpdates(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber too slow")
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
