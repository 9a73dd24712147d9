package room

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/websocket"
	"github.com/groovify/beatsync/internal/repository/room"
	"github.com/groovify/beatsync/pkg/wsrouter"
)

func (s service) ConnectMember(conn *wsrouter.Conn, memberID string) error {
	return s.connRepo.Add(conn, memberID)
}

// CloseConns sends a going-away close frame to every connected member.
// Their disconnects then run through the usual leave path.
func (s service) CloseConns() {
	for _, conn := range s.connRepo.All() {
		if err := conn.CloseWithCode(websocket.CloseGoingAway, "server shutting down"); err != nil {
			s.logger.Debug().Err(err).Msg("failed to close connection")
		}
	}
}

// MemberRoom returns the room memberID is in, or ErrNotInRoom.
func (s service) MemberRoom(ctx context.Context, memberID string) (string, error) {
	roomName, err := s.roomRepo.GetMemberRoom(ctx, memberID)
	if err != nil {
		if errors.Is(err, room.ErrMemberNotFound) {
			return "", ErrNotInRoom
		}
		return "", err
	}

	return roomName, nil
}

type JoinRoomParams struct {
	MemberID string
	RoomName string
	IsAdmin  bool
}

type JoinRoomResponse struct {
	RoomName         string
	IsAdmin          bool
	AnyoneCanControl bool
	QueueState
	CatchUp *CatchUp
}

// JoinRoom adds the member to the room, creating it on first join. A
// requested admin role is granted only if the room has no admin yet.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	roomName := NormalizeRoomName(params.RoomName)
	if err := validation.Validate(roomName, RoomNameRule...); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("%w: %v", ErrInvalidRoomName, err)
	}

	if _, err := s.MemberRoom(ctx, params.MemberID); err == nil {
		return JoinRoomResponse{}, ErrAlreadyInRoom
	} else if !errors.Is(err, ErrNotInRoom) {
		return JoinRoomResponse{}, err
	}

	count, err := s.roomRepo.GetMembersCount(ctx, roomName)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to count members: %w", err)
	}
	if s.cfg.MembersLimit > 0 && count >= s.cfg.MembersLimit {
		return JoinRoomResponse{}, ErrRoomFull
	}

	if err := s.roomRepo.AddMember(ctx, &room.AddMemberParams{
		RoomName: roomName,
		MemberID: params.MemberID,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to add member: %w", err)
	}

	isAdmin := false
	if params.IsAdmin {
		isAdmin, err = s.roomRepo.ClaimAdmin(ctx, roomName, params.MemberID)
		if err != nil {
			return JoinRoomResponse{}, fmt.Errorf("failed to claim admin: %w", err)
		}
	}

	rm, err := s.getRoom(ctx, roomName)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	queue, err := s.roomRepo.GetQueue(ctx, roomName)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	np, err := s.getNowPlaying(ctx, roomName)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	resp := JoinRoomResponse{
		RoomName:         roomName,
		IsAdmin:          isAdmin,
		AnyoneCanControl: rm.AnyoneCanControl,
		QueueState:       QueueState{Queue: queue},
	}

	if np != nil {
		resp.NowPlaying = &np.Song
		resp.CatchUp = &CatchUp{Song: np.Song, StartAt: np.StartAt}
		if elapsed := s.clock.Since(np.StartAt); elapsed >= 0 {
			resp.CatchUp.SeekTo = &elapsed
		}
	}

	s.logger.Info().
		Str("room", roomName).
		Str("member_id", params.MemberID).
		Bool("requested_admin", params.IsAdmin).
		Bool("admin", isAdmin).
		Msg("member joined")

	return resp, nil
}

type LeaveRoomParams struct {
	MemberID string
}

type LeaveRoomResponse struct {
	RoomName string
	// NewAdminConn is set when the leaving admin's role was handed over.
	NewAdminID   string
	NewAdminConn *wsrouter.Conn
	Emptied      bool
}

// LeaveRoom removes the member from its room. An admin hands the role to
// the earliest-joined remaining member; an emptied room starts expiring.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	roomName, err := s.MemberRoom(ctx, params.MemberID)
	if err != nil {
		return LeaveRoomResponse{}, err
	}

	remaining, err := s.roomRepo.RemoveMember(ctx, &room.RemoveMemberParams{
		RoomName: roomName,
		MemberID: params.MemberID,
	})
	if err != nil && !errors.Is(err, room.ErrMemberNotFound) {
		return LeaveRoomResponse{}, fmt.Errorf("failed to remove member: %w", err)
	}

	resp := LeaveRoomResponse{RoomName: roomName, Emptied: remaining == 0}

	rm, err := s.getRoom(ctx, roomName)
	if err != nil {
		return LeaveRoomResponse{}, err
	}

	if rm.AdminID == params.MemberID {
		newAdminID, err := s.handOverAdmin(ctx, roomName)
		if err != nil {
			return LeaveRoomResponse{}, err
		}
		if newAdminID != "" {
			resp.NewAdminID = newAdminID
			resp.NewAdminConn, _ = s.connRepo.GetConn(newAdminID)
		}
	}

	if resp.Emptied {
		if err := s.roomRepo.Expire(ctx, roomName, s.cfg.RoomExp); err != nil {
			return LeaveRoomResponse{}, fmt.Errorf("failed to expire room: %w", err)
		}
	}

	s.logger.Info().Str("room", roomName).Str("member_id", params.MemberID).Int("remaining", remaining).Msg("member left")
	return resp, nil
}

// handOverAdmin promotes the earliest-joined member of roomName, or clears
// the admin slot when nobody is left. It returns the new admin id, if any.
func (s service) handOverAdmin(ctx context.Context, roomName string) (string, error) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomName)
	if err != nil {
		return "", fmt.Errorf("failed to get member ids: %w", err)
	}

	if len(memberIDs) == 0 {
		if err := s.roomRepo.ClearAdmin(ctx, roomName); err != nil {
			return "", fmt.Errorf("failed to clear admin: %w", err)
		}
		return "", nil
	}

	if err := s.roomRepo.SetAdmin(ctx, roomName, memberIDs[0]); err != nil {
		return "", fmt.Errorf("failed to promote member: %w", err)
	}
	s.logger.Info().Str("room", roomName).Str("member_id", memberIDs[0]).Msg("admin handed over")

	return memberIDs[0], nil
}

// DisconnectMember forgets conn and takes its member out of any room.
// The returned member id is empty if conn was never registered.
func (s service) DisconnectMember(ctx context.Context, conn *wsrouter.Conn) (string, *LeaveRoomResponse, error) {
	memberID, err := s.connRepo.RemoveByConn(conn)
	if err != nil {
		return "", nil, err
	}

	resp, err := s.LeaveRoom(ctx, &LeaveRoomParams{MemberID: memberID})
	if err != nil {
		if errors.Is(err, ErrNotInRoom) {
			return memberID, nil, nil
		}
		return memberID, nil, err
	}

	return memberID, &resp, nil
}

type ToggleAnyoneCanControlParams struct {
	SenderID string
	RoomName string
	Enabled  bool
}

type ToggleAnyoneCanControlResponse struct {
	Enabled bool
	Conns   []*wsrouter.Conn
}

func (s service) ToggleAnyoneCanControl(ctx context.Context, params *ToggleAnyoneCanControlParams) (ToggleAnyoneCanControlResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomName, params.SenderID); err != nil {
		return ToggleAnyoneCanControlResponse{}, err
	}

	if err := s.roomRepo.SetAnyoneCanControl(ctx, params.RoomName, params.Enabled); err != nil {
		return ToggleAnyoneCanControlResponse{}, fmt.Errorf("failed to set anyone can control: %w", err)
	}

	conns, err := s.getConns(ctx, params.RoomName)
	if err != nil {
		return ToggleAnyoneCanControlResponse{}, err
	}

	return ToggleAnyoneCanControlResponse{Enabled: params.Enabled, Conns: conns}, nil
}
