package qxapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"qxbot/pkg/broker"
)

const feedDialTimeout = 10 * time.Second

// feed consumes the websocket quote stream and retains the latest price per
// instrument. Read failures end the loop quietly; the client falls back to
// REST quotes until the next Connect.
type feed struct {
	conn *websocket.Conn

	mu     sync.RWMutex
	quotes map[string]broker.Quote
	closed bool
}

func dialFeed(ctx context.Context, feedURL, token string) (*feed, error) {
	dialer := websocket.Dialer{HandshakeTimeout: feedDialTimeout}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := dialer.DialContext(ctx, feedURL, header)
	if err != nil {
		return nil, broker.NewError(broker.KindConnectivity, "dial feed", err)
	}

	f := &feed{
		conn:   conn,
		quotes: make(map[string]broker.Quote),
	}
	go f.run()
	return f, nil
}

func (f *feed) run() {
	for {
		var msg quotePayload
		if err := f.conn.ReadJSON(&msg); err != nil {
			f.mu.RLock()
			closed := f.closed
			f.mu.RUnlock()
			if !closed {
				logx.Errorf("qxapi: quote feed read: %v", err)
			}
			return
		}
		if msg.Symbol == "" || msg.Price <= 0 {
			continue
		}
		q := broker.Quote{
			Instrument: msg.Symbol,
			Price:      msg.Price,
			At:         time.UnixMilli(msg.TsMs),
		}
		f.mu.Lock()
		f.quotes[msg.Symbol] = q
		f.mu.Unlock()
	}
}

func (f *feed) latest(instrument string) (broker.Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[instrument]
	return q, ok
}

func (f *feed) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	if err := f.conn.Close(); err != nil {
		logx.Errorf("qxapi: close feed: %v", err)
	}
}
