package controller

import (
	"github.com/groovify/beatsync/internal/protocol"
	"github.com/groovify/beatsync/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.metricsWSMw(), c.loggerWSMw())
	mux.OnError(c.handleError)

	// membership
	wsrouter.Handle(mux, protocol.EventJoinRoom, c.handleJoinRoom)
	wsrouter.Handle(mux, protocol.EventLeaveRoom, c.handleLeaveRoom)

	// playback
	wsrouter.Handle(mux, protocol.EventPlaySong, c.handlePlaySong)

	// queue
	wsrouter.Handle(mux, protocol.EventAddToQueue, c.handleAddToQueue)
	wsrouter.Handle(mux, protocol.EventRemoveFromQueue, c.handleRemoveFromQueue)
	wsrouter.Handle(mux, protocol.EventClearQueue, c.handleClearQueue)
	wsrouter.Handle(mux, protocol.EventRequestQueueSync, c.handleRequestQueueSync)

	// room settings
	wsrouter.Handle(mux, protocol.EventToggleAnyoneCanControl, c.handleToggleAnyoneCanControl)

	return mux
}
