package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/model"
	"github.com/iliyamo/seat-booking-core/internal/notifier"
)

// SeatFeed hands out live seat-event subscriptions.
type SeatFeed interface {
	Subscribe(showingID uint64) *notifier.Subscription
}

// LayoutSource confirms a showing exists before a stream is opened.
type LayoutSource interface {
	Layout(ctx context.Context, showingID uint64) (model.SeatLayout, error)
}

// SeatEventsHandler streams seat-map changes as server-sent events.
type SeatEventsHandler struct {
	feed    SeatFeed
	layouts LayoutSource
	log     *zap.Logger
}

// NewSeatEventsHandler returns a handler streaming from feed.
func NewSeatEventsHandler(feed SeatFeed, layouts LayoutSource, log *zap.Logger) *SeatEventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SeatEventsHandler{feed: feed, layouts: layouts, log: log}
}

// Stream handles GET /v1/showings/:id/events.  Each change is one frame
//
//	event: occupied
//	data: {"kind":"occupied","showing_id":1,"seat":{"row":3,"col":4},...}
//
// keep-alives are SSE comments and a resync frame means events were
// dropped and the seat map must be refetched.  The stream ends when the
// client goes away or the hub drops the subscription.
func (h *SeatEventsHandler) Stream(c echo.Context) error {
	showingID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showing id")
	}
	ctx := c.Request().Context()
	if _, err := h.layouts.Layout(ctx, showingID); err != nil {
		return writeError(c, h.log, err)
	}

	sub := h.feed.Subscribe(showingID)
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	if err := writeFrame(res, ": connected\n\n"); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return nil
		case ev := <-sub.C():
			if err := writeEvent(res, ev); err != nil {
				h.log.Debug("seat stream closed", zap.Uint64("showing_id", showingID), zap.Error(err))
				return nil
			}
		}
	}
}

func writeEvent(res *echo.Response, ev model.SeatEvent) error {
	if ev.Kind == model.EventKeepAlive {
		return writeFrame(res, ": keepalive\n\n")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return writeFrame(res, fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Kind, data))
}

func writeFrame(res *echo.Response, frame string) error {
	if _, err := io.WriteString(res, frame); err != nil {
		return err
	}
	res.Flush()
	return nil
}
