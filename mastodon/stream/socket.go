package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/mastodon"
)

// Socket reads the public timeline over the streaming websocket.
type Socket struct {
	url    string
	dialer *websocket.Dialer
	logger *logrus.Entry
}

var _ Streamer = (*Socket)(nil)

// socketMessage is the envelope of every websocket frame. Payload holds the
// event body as a JSON-encoded string.
type socketMessage struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// Stream implements Streamer.
func (s *Socket) Stream(ctx context.Context, out chan<- mastodon.Event) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("socket: dial: %w", err)
	}

	s.logger.Info("connected to streaming socket")

	// ReadMessage does not watch ctx, so closing the connection is what
	// unblocks it on cancellation.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		select {
		case <-ctx.Done():
		case <-done:
		}

		_ = conn.Close()
	}()

	defer func() {
		close(done)
		wg.Wait()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamClosed
			}

			return fmt.Errorf("socket: read: %w", err)
		}

		var msg socketMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			s.logger.WithError(err).Warn("skipping malformed socket frame")

			continue
		}

		if err := emit(ctx, s.logger, out, msg.Event, []byte(msg.Payload)); err != nil {
			return err
		}
	}
}
