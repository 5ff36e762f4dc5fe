package utils

import (
	"context"

	"github.com/zqywuxie/invoice-management/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyDisplayName   = appctx.ContextKeyDisplayName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyIsAdmin       = appctx.ContextKeyIsAdmin
)

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetDisplayNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyDisplayName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsAdminFromContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeyIsAdmin)
	return ok && v
}

func SetUserIdInContext(ctx context.Context, id int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, id)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetDisplayNameInContext(ctx context.Context, name string) context.Context {
	return appctx.Set(ctx, ContextKeyDisplayName, name)
}

func SetCorrelationIdInContext(ctx context.Context, cid string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, cid)
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsAdmin, isAdmin)
}
