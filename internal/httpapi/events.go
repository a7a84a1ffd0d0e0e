package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"engage-ledger/pkg/broadcast"
	"engage-ledger/pkg/db/pagination"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListEvents reads classified history from the event log.
func (h *Handler) ListEvents(c *gin.Context) {
	var params pagination.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		_ = c.Error(invalid("query", err.Error(), err))
		return
	}

	events, err := h.events.List(c.Request.Context(), params, c.Query("filter"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, events)
}

// StreamEvents relays live events as server-sent events. A comment frame is
// written whenever the stream has been idle for one heartbeat.
func (h *Handler) StreamEvents(c *gin.Context) {
	rx := h.hub.Subscribe()
	defer rx.Close()

	ctx := c.Request.Context()
	log := zap.L().With(zap.String("client_ip", c.ClientIP()))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	w := c.Writer
	for {
		recvCtx, cancel := context.WithTimeout(ctx, h.heartbeat)
		ev, err := rx.Recv(recvCtx)
		cancel()

		var lagged *broadcast.LaggedError
		switch {
		case err == nil:
			data, mErr := json.Marshal(ev)
			if mErr != nil {
				log.Error("failed to encode event", zap.Int64("id", ev.ID), zap.Error(mErr))
				continue
			}
			if _, wErr := fmt.Fprintf(w, "data: %s\n\n", data); wErr != nil {
				return
			}
		case errors.As(err, &lagged):
			log.Warn("event stream lagged", zap.Uint64("skipped", lagged.Skipped))
			if _, wErr := fmt.Fprintf(w, "event: lagged\ndata: {\"skipped\":%d}\n\n", lagged.Skipped); wErr != nil {
				return
			}
		case errors.Is(err, broadcast.ErrClosed):
			return
		case ctx.Err() != nil:
			return
		case errors.Is(err, context.DeadlineExceeded):
			if _, wErr := fmt.Fprint(w, ": keep-alive\n\n"); wErr != nil {
				return
			}
		default:
			log.Error("event stream failed", zap.Error(err))
			return
		}
		w.Flush()
	}
}
