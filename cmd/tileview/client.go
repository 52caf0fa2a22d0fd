package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"tilelight.ai/internal/observerproto"
)

// client talks to the server's local admin surface.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}
}

func (c *client) bootstrap(ctx context.Context) (observerproto.BootstrapResponse, error) {
	var out observerproto.BootstrapResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/admin/v1/observer/bootstrap", nil)
	if err != nil {
		return out, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("bootstrap: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func (c *client) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	return nil
}

func (c *client) moveFocus(ctx context.Context, id string, dx, dy float32) error {
	return c.post(ctx, "/admin/v1/focus/move", map[string]any{"id": id, "dx": dx, "dy": dy})
}

func (c *client) writeTile(ctx context.Context, layer string, x, y, value int) error {
	return c.post(ctx, "/admin/v1/write", map[string]any{"layer": layer, "x": x, "y": y, "value": value})
}

func (c *client) wsURL() (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/admin/v1/observer/ws"
	return u.String(), nil
}

func subscribeMsg(focusID string, radius int, light bool) observerproto.SubscribeMsg {
	return observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		FocusID:         focusID,
		ChunkRadius:     radius,
		Layers:          []string{observerproto.LayerPassability},
		Light:           light,
	}
}

// stream dials the observer websocket and forwards frames until the
// connection drops or ctx ends.
func (c *client) stream(ctx context.Context, sub observerproto.SubscribeMsg, frames chan<- []byte) (*websocket.Conn, error) {
	u, err := c.wsURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go func() {
		defer close(frames)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case frames <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return conn, nil
}
