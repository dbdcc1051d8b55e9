package handler

import (
	"context"

	"callrelay/internal/app/calllog"
	"callrelay/internal/app/chat"
	"callrelay/internal/configs"
)

// CallHistory reads call records for a pair of users. *calllog.Log satisfies it.
type CallHistory interface {
	List(ctx context.Context, a, b string, limit int) ([]calllog.Entry, error)
}

// AppDeps bundles what the HTTP handlers need.
type AppDeps struct {
	Manager *chat.Manager
	Config  *configs.AppConfig

	// CallLog may be nil, in which case /api/calls always returns an empty list.
	CallLog CallHistory
}
