package room

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrSongNotFound       = errors.New("song not found")
	ErrSongAlreadyQueued  = errors.New("song already queued")
	ErrQueueLimitReached  = errors.New("queue limit reached")
	ErrIndexOutOfRange    = errors.New("queue index out of range")
	ErrNowPlayingNotFound = errors.New("nothing is playing")
)
