package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/andiegogiap/AI-WORKFLOW/board"
)

const streamKeepAlive = 25 * time.Second

// updateBroker fans board changes out to SSE subscribers. A subscriber
// channel holds at most one pending signal; the handler always sends the
// board as it is when the signal is consumed.
type updateBroker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newUpdateBroker() *updateBroker {
	return &updateBroker{subs: make(map[chan struct{}]struct{})}
}

func (b *updateBroker) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *updateBroker) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *updateBroker) notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

func streamBoard(boards *board.BoardStore, broker *updateBroker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return writeJSONError(c, http.StatusInternalServerError, "stream unsupported", "")
		}
		res.WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)
		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		for {
			var payload any
			if b, ok := boards.Current(); ok {
				payload = boardResponse{Board: b, Progress: progressOf(b)}
			}
			data, err := sonic.ConfigStd.Marshal(payload)
			if err != nil {
				logger.WithError(err).Error("encode board event")
				return err
			}
			if _, err := res.Write(append(append([]byte("event: board\ndata: "), data...), '\n', '\n')); err != nil {
				return nil
			}
			flusher.Flush()

			if !waitForChange(ctx.Done(), ch, keepAlive.C, res, flusher) {
				return nil
			}
		}
	}
}

// waitForChange blocks until the broker signals, writing keep-alive comments
// meanwhile. It returns false when the client went away.
func waitForChange(done <-chan struct{}, ch <-chan struct{}, tick <-chan time.Time, res *echo.Response, flusher http.Flusher) bool {
	for {
		select {
		case <-done:
			return false
		case <-ch:
			return true
		case <-tick:
			if _, err := res.Write([]byte(": keep-alive\n\n")); err != nil {
				return false
			}
			flusher.Flush()
		}
	}
}
