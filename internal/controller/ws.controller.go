package controller

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/groovify/beatsync/internal/protocol"
	"github.com/groovify/beatsync/internal/telemetry"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
)

// serveWS upgrades the request and makes the connection a new member
// until it closes.
func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	c.active.Add(1)
	defer c.active.Done()

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("failed to upgrade connection")
		return
	}
	conn := wsrouter.NewConn(ws)
	defer conn.Close()

	memberID := uuid.NewString()
	logger := c.logger.With().Str("member_id", memberID).Str("remote_addr", conn.RemoteAddr()).Logger()
	ctx := logger.WithContext(context.WithoutCancel(r.Context()))
	ctx = context.WithValue(ctx, memberIDCtxKey, memberID)

	if err := c.roomService.ConnectMember(conn, memberID); err != nil {
		logger.Error().Err(err).Msg("failed to register connection")
		conn.CloseWithCode(websocket.CloseInternalServerErr, "")
		return
	}

	telemetry.Connections.Inc()
	defer telemetry.Connections.Dec()
	logger.Info().Msg("member connected")

	err = c.wsRouter.ServeConn(ctx, ws, conn)
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.Info().Err(err).Msg("connection closed unexpectedly")
	}

	c.disconnect(ctx, conn, memberID)
	logger.Info().Msg("member disconnected")
}

func (c controller) disconnect(ctx context.Context, conn *wsrouter.Conn, memberID string) {
	logger := zerolog.Ctx(ctx)

	roomName, err := c.roomService.MemberRoom(ctx, memberID)
	if err == nil {
		unlock := c.locks.Lock(roomName)
		defer unlock()
	}

	_, left, err := c.roomService.DisconnectMember(ctx, conn)
	if err != nil {
		logger.Error().Err(err).Msg("failed to disconnect member")
		return
	}

	if left != nil {
		c.announceHandover(ctx, left.NewAdminConn)
	}
}

func (c controller) announceHandover(ctx context.Context, newAdmin *wsrouter.Conn) {
	if newAdmin == nil {
		return
	}

	c.send(ctx, newAdmin, protocol.EventAdminStatus, protocol.AdminStatus{IsAdmin: true})
}

// handleError reports a failed event to its sender. The connection stays open.
func (c controller) handleError(ctx context.Context, conn *wsrouter.Conn, err error) {
	messageType := wsrouter.GetMessageTypeFromCtx(ctx)
	telemetry.EventErrors.WithLabelValues(messageType).Inc()

	logger := zerolog.Ctx(ctx)
	if isUserError(err) {
		logger.Info().Err(err).Str("message_type", messageType).Msg("websocket message rejected")
	} else {
		logger.Error().Err(err).Str("message_type", messageType).Msg("websocket message failed")
	}

	c.send(ctx, conn, protocol.EventError, protocol.Error{Message: userMessage(err)})
}
