// Package wsrouter dispatches {type, payload} websocket messages to typed
// handlers.
package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc[T any] func(ctx context.Context, conn *Conn, payload T) error

type Middleware func(next HandlerFunc[json.RawMessage]) HandlerFunc[json.RawMessage]

// ErrorHandler receives every error a handler returns. The connection stays open.
type ErrorHandler func(ctx context.Context, conn *Conn, err error)

type WSRouter struct {
	routes      map[string]HandlerFunc[json.RawMessage]
	middlewares []Middleware
	onError     ErrorHandler
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]HandlerFunc[json.RawMessage])}
}

func (r *WSRouter) Use(mws ...Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

func (r *WSRouter) OnError(h ErrorHandler) {
	r.onError = h
}

// Handle registers h for messageType. The payload is decoded into T
// before h runs; an empty payload leaves T at its zero value.
func Handle[T any](r *WSRouter, messageType string, h HandlerFunc[T]) {
	r.routes[messageType] = func(ctx context.Context, conn *Conn, raw json.RawMessage) error {
		var payload T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}

		return h(ctx, conn, payload)
	}
}

// Dispatch runs the handler registered for msg.Type through the middleware chain.
func (r *WSRouter) Dispatch(ctx context.Context, conn *Conn, msg Message) error {
	handler, ok := r.routes[msg.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	return handler(withMessageType(ctx, msg.Type), conn, msg.Payload)
}

// ServeConn reads messages until the connection fails or ctx is done.
// Handler errors go to the error handler and do not end the loop.
func (r *WSRouter) ServeConn(ctx context.Context, ws *websocket.Conn, conn *Conn) error {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.ping(ctx, conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.handleError(ctx, conn, fmt.Errorf("%w: %v", ErrInvalidPayload, err))
			continue
		}

		if err := r.Dispatch(ctx, conn, msg); err != nil {
			r.handleError(withMessageType(ctx, msg.Type), conn, err)
		}
	}
}

func (r *WSRouter) handleError(ctx context.Context, conn *Conn, err error) {
	if r.onError != nil {
		r.onError(ctx, conn, err)
	}
}

func (r *WSRouter) ping(ctx context.Context, conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WritePing(); err != nil {
				return
			}
		}
	}
}
