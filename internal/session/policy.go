package session

import "fmt"

type Action int

const (
	ActionEnqueue Action = iota
	ActionRemove
	ActionClear
	ActionPlayNext
	ActionToggleControl
)

func (a Action) String() string {
	switch a {
	case ActionEnqueue:
		return "enqueue"
	case ActionRemove:
		return "remove"
	case ActionClear:
		return "clear"
	case ActionPlayNext:
		return "play_next"
	case ActionToggleControl:
		return "toggle_control"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Permit is the permission rule. Admin may do everything; a listener may
// only enqueue and only while anyone-can-control is on.
func Permit(state State, anyoneCanControl bool, a Action) error {
	switch state {
	case NoRoom:
		return ErrNotInRoom
	case PendingJoin:
		return ErrRoleUnconfirmed
	case Admin:
		return nil
	}

	if a != ActionEnqueue {
		return ErrNotAdmin
	}
	if !anyoneCanControl {
		return ErrControlDisabled
	}
	return nil
}
