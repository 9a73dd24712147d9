package controller

import "context"

type contextKey int

const (
	memberIDCtxKey contextKey = iota
)

func (c controller) getMemberIDFromCtx(ctx context.Context) string {
	memberID, ok := ctx.Value(memberIDCtxKey).(string)
	if !ok {
		return ""
	}

	return memberID
}
