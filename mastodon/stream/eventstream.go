package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/mastodon"
)

// Status ids and HTML content can make a single data line large.
const maxEventLineSize = 1 << 20

// EventStream reads the public timeline as server-sent events.
type EventStream struct {
	url    string
	client *http.Client
	logger *logrus.Entry
}

var _ Streamer = (*EventStream)(nil)

// Stream implements Streamer.
func (s *EventStream) Stream(ctx context.Context, out chan<- mastodon.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("event stream: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: unexpected status %d", resp.StatusCode)
	}

	s.logger.Info("connected to event stream")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineSize)

	var (
		name    string
		data    bytes.Buffer
		hasData bool
	)

	for scanner.Scan() {
		line := scanner.Bytes()

		switch {
		case len(line) == 0:
			if hasData {
				if err := emit(ctx, s.logger, out, name, data.Bytes()); err != nil {
					return err
				}
			}

			name, hasData = "", false
			data.Reset()

		case line[0] == ':':
			// Comment, used by Mastodon as a heartbeat.

		default:
			field, value := splitField(line)

			switch string(field) {
			case "event":
				name = string(value)
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.Write(value)
				hasData = true
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("event stream: %w", err)
	}

	return ErrStreamClosed
}

// splitField splits "field: value" and drops a single space after the
// colon. A line without a colon is a field with an empty value.
func splitField(line []byte) ([]byte, []byte) {
	field, value, found := bytes.Cut(line, []byte(":"))
	if !found {
		return line, nil
	}

	return field, bytes.TrimPrefix(value, []byte(" "))
}
