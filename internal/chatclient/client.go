// Package chatclient is a terminal client for the chatbot WebSocket channel.
package chatclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/gallerybot/internal/transport/ws"
)

// Client represents a WebSocket client.
type Client struct {
	conn *websocket.Conn
	done chan struct{}
}

// Dial connects to addr. A non-empty token is sent as a bearer credential.
func Dial(addr, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(addr, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// Send sends one chat message.
func (c *Client) Send(message string) error {
	return c.conn.WriteJSON(ws.ClientFrame{Type: ws.TypeChat, Message: message})
}

// ReadFrames prints server frames to out until the connection closes.
func (c *Client) ReadFrames(out io.Writer) error {
	for {
		select {
		case <-c.done:
			return nil
		default:
		}

		if err := c.ReadFrame(out); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
	}
}

// ReadFrame blocks for the next server frame and prints it to out.
func (c *Client) ReadFrame(out io.Writer) error {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	return Render(out, data)
}

// Render writes a human-readable form of one server frame.
func Render(out io.Writer, data []byte) error {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}

	switch base.Type {
	case ws.TypeReply:
		var reply ws.ReplyFrame
		if err := json.Unmarshal(data, &reply); err != nil {
			return fmt.Errorf("unmarshal reply: %w", err)
		}
		fmt.Fprintf(out, "bot [%s]: %s\n", reply.Intent, reply.Response)
		if reply.Ended {
			fmt.Fprintln(out, "(session ended)")
		}
	case ws.TypeError:
		var frame ws.ErrorFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("unmarshal error: %w", err)
		}
		if frame.RetryAfter > 0 {
			fmt.Fprintf(out, "error: %s (retry in %ds)\n", frame.Error, frame.RetryAfter)
		} else {
			fmt.Fprintf(out, "error: %s\n", frame.Error)
		}
	default:
		fmt.Fprintf(out, "[%s] %s\n", base.Type, string(data))
	}
	return nil
}
