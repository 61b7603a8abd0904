package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/portrun/internal/events"
	"github.com/mattjoyce/portrun/internal/protocol"
)

// ErrStreamClosed is returned when the mirror disconnects before the run finishes.
var ErrStreamClosed = errors.New("event stream closed before the run finished")

type remoteMessage struct {
	Seq     int              `json:"seq"`
	Message protocol.Message `json:"message"`
}

type remoteFinished struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Follow reads the live mirror's /events stream and sends the messages of one
// run to send. An empty runID follows the first run that starts. Follow
// returns once that run finishes.
func Follow(ctx context.Context, apiURL, runID string, send func(tea.Msg)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(apiURL, "/")+"/events", nil)
	if err != nil {
		return fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", apiURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect to %s: unexpected status %s", apiURL, resp.Status)
	}

	finished := false
	err = readSSE(resp.Body, func(ev events.Event) bool {
		if runID == "" && ev.Type == events.TypeRunStarted {
			runID = ev.RunID
		}
		if ev.RunID == "" || ev.RunID != runID {
			return true
		}

		switch ev.Type {
		case events.TypeRunMessage:
			var m remoteMessage
			if err := json.Unmarshal(ev.Data, &m); err == nil {
				send(MessageMsg(m.Message))
			}
		case events.TypeRunFinished:
			var f remoteFinished
			_ = json.Unmarshal(ev.Data, &f)
			var runErr error
			if f.Error != "" {
				runErr = errors.New(f.Error)
			}
			send(FinishedMsg{Err: runErr})
			finished = true
			return false
		}
		return true
	})
	if finished {
		return nil
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("read events: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrStreamClosed
}

// readSSE decodes server-sent events from r until fn returns false or r ends.
func readSSE(r io.Reader, fn func(events.Event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		id   int64
		typ  string
		data string
	)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data != "" {
				var ev events.Event
				if err := json.Unmarshal([]byte(data), &ev); err == nil {
					if ev.ID == 0 {
						ev.ID = id
					}
					if ev.Type == "" {
						ev.Type = typ
					}
					if !fn(ev) {
						return nil
					}
				}
			}
			id, typ, data = 0, "", ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "id: "):
			if n, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				id = n
			}
		case strings.HasPrefix(line, "event: "):
			typ = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = line[6:]
		}
	}
	return scanner.Err()
}
