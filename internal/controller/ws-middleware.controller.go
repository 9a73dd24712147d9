package controller

import (
	"context"
	"encoding/json"

	"github.com/groovify/beatsync/internal/telemetry"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
)

func (c controller) metricsWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[json.RawMessage]) wsrouter.HandlerFunc[json.RawMessage] {
		return func(ctx context.Context, conn *wsrouter.Conn, payload json.RawMessage) error {
			telemetry.Events.WithLabelValues(wsrouter.GetMessageTypeFromCtx(ctx)).Inc()
			return next(ctx, conn, payload)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[json.RawMessage]) wsrouter.HandlerFunc[json.RawMessage] {
		return func(ctx context.Context, conn *wsrouter.Conn, payload json.RawMessage) error {
			logger := zerolog.Ctx(ctx).With().Str("message_type", wsrouter.GetMessageTypeFromCtx(ctx)).Logger()
			ctx = logger.WithContext(ctx)
			ev := logger.Debug()
			if len(payload) > 0 {
				ev = ev.RawJSON("payload", payload)
			}
			ev.Msg("websocket message received")

			start := c.clock.Now()
			err := next(ctx, conn, payload)

			logger.Debug().
				Int64("processing_time_us", c.clock.Since(start).Microseconds()).
				Bool("ok", err == nil).
				Msg("websocket message handled")

			return err
		}
	}
}
