package streakd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	feedBuffer       = 32
	feedWriteTimeout = 5 * time.Second
)

// Event is pushed to feed subscribers after state changes.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Event types.
const (
	EventRunCompleted    = "run.completed"
	EventMilestone       = "milestone.reached"
	EventReferralBonus   = "referral.bonus"
	EventOverrideApplied = "override.applied"
)

// Feed fans events out to websocket subscribers. Slow subscribers drop
// events instead of blocking publishers.
type Feed struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewFeed returns an empty feed.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{logger: logger, subs: make(map[chan Event]struct{})}
}

// Publish delivers evt to every subscriber that has room for it.
func (f *Feed) Publish(evt Event) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- evt:
		default:
			f.logger.Warn("feed subscriber lagging, event dropped", "type", evt.Type)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release it.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, feedBuffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "feed closed")

	events, cancel := f.Subscribe()
	defer cancel()
	ctx := conn.CloseRead(r.Context())
	if err := f.stream(ctx, conn, events); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "feed error")
		}
	}
}

func (f *Feed) stream(ctx context.Context, conn *websocket.Conn, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-events:
			data, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
