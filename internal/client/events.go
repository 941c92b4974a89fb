package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/voxchat/internal/events"
)

// graphql-transport-ws protocol message types
const (
	gqlConnectionInit = "connection_init"
	gqlConnectionAck  = "connection_ack"
	gqlSubscribe      = "subscribe"
	gqlNext           = "next"
	gqlError          = "error"
	gqlComplete       = "complete"
	gqlPing           = "ping"
	gqlPong           = "pong"
)

// wsMessage represents a graphql-transport-ws protocol message.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsSubscribePayload is the payload for subscribe messages.
type wsSubscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

const changesSubscription = `
	subscription Changes {
		changes {
			type conversationId at
			conversation { ` + conversationFields + ` }
			message { ` + messageFields + ` }
			performance { ` + performanceFields + ` }
		}
	}
`

// Watch streams the owner's change events until ctx is cancelled or the
// server ends the subscription. Return an error from onEvent to stop
// watching.
func (c *Client) Watch(ctx context.Context, onEvent func(events.Event) error) error {
	wsEndpoint := c.baseURL + queryPath
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"graphql-transport-ws"},
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("websocket connect: %w", ErrUnauthorized)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: gqlConnectionInit}); err != nil {
		return c.watchErr(ctx, "send connection_init", err)
	}
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		return c.watchErr(ctx, "read connection_ack", err)
	}
	if ack.Type != gqlConnectionAck {
		return fmt.Errorf("expected connection_ack, got %s", ack.Type)
	}

	payload, _ := json.Marshal(wsSubscribePayload{Query: changesSubscription})
	subscriptionID := uuid.New().String()
	if err := conn.WriteJSON(wsMessage{ID: subscriptionID, Type: gqlSubscribe, Payload: payload}); err != nil {
		return c.watchErr(ctx, "send subscribe", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return c.watchErr(ctx, "read message", err)
		}

		switch msg.Type {
		case gqlNext:
			var data struct {
				Data struct {
					Changes *events.Event `json:"changes"`
				} `json:"data"`
				Errors []graphQLError `json:"errors,omitempty"`
			}
			if err := json.Unmarshal(msg.Payload, &data); err != nil {
				return fmt.Errorf("unmarshal next payload: %w", err)
			}
			if len(data.Errors) > 0 {
				return data.Errors[0].Err()
			}
			if data.Data.Changes == nil {
				continue
			}
			if err := onEvent(*data.Data.Changes); err != nil {
				return err
			}

		case gqlError:
			var errs []graphQLError
			if err := json.Unmarshal(msg.Payload, &errs); err != nil || len(errs) == 0 {
				return fmt.Errorf("subscription error: %s", string(msg.Payload))
			}
			return errs[0].Err()

		case gqlComplete:
			return nil

		case gqlPing:
			if err := conn.WriteJSON(wsMessage{Type: gqlPong}); err != nil {
				return c.watchErr(ctx, "send pong", err)
			}
		}
	}
}

// watchErr prefers the context's error when cancellation closed the
// connection underneath a read or write.
func (c *Client) watchErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s: %w", op, err)
}
