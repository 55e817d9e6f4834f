package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/daemon"
	"github.com/charlie0129/markercam/pkg/events"
)

// GetStatus returns the daemon's capture and streaming state.
func (c *Client) GetStatus() (*daemon.StatusResponse, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}
	var st daemon.StatusResponse
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

// GetCalibration returns the calibration in use. It returns ErrNotFound while
// the daemon has none.
func (c *Client) GetCalibration() (*calibration.Result, error) {
	ret, err := c.Get("/calibration")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration")
	}
	var r calibration.Result
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibration")
	}
	return &r, nil
}

func (c *Client) DeleteCalibration() (string, error) {
	ret, err := c.Delete("/calibration")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to delete calibration")
	}
	return unquote(ret), nil
}

func (c *Client) Control(e control.Event) (string, error) {
	ret, err := c.Post("/control/"+e.String(), "")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to send %s", e)
	}
	return unquote(ret), nil
}

func (c *Client) GetVersion() (*daemon.VersionResponse, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get version")
	}
	var v daemon.VersionResponse
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return &v, nil
}

// WatchEvents calls fn for each server-sent event until fn returns false,
// ctx is done or the daemon closes the stream.
func (c *Client) WatchEvents(ctx context.Context, fn func(events.Event) bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to subscribe to events")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Errorf("failed to subscribe to events: got %d", resp.StatusCode)
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses a text/event-stream body.
func readEvents(r io.Reader, fn func(events.Event) bool) error {
	sc := bufio.NewScanner(r)
	var ev events.Event
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Name == "" && len(data) == 0 {
				continue
			}
			ev.Data = json.RawMessage(strings.Join(data, "\n"))
			if !fn(ev) {
				return nil
			}
			ev, data = events.Event{}, nil
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return sc.Err()
}

// unquote strips the JSON string quoting of simple text replies.
func unquote(s string) string {
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}
