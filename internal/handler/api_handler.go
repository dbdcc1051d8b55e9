/*
Package handler provides HTTP handler functions for the read-only presence and call history API.
*/
package handler

import (
	"net/http"
	"strconv"

	"callrelay/internal/app/calllog"
	"callrelay/internal/app/user"
	"callrelay/internal/pkg/errs"
	"callrelay/internal/pkg/logx"
	"callrelay/internal/pkg/resp"
)

const (
	defaultCallsLimit = 50
	maxCallsLimit     = 200
)

// HandleListUsers returns every registered user with its call state, in registration order.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Manager.Registry().Snapshot())
	}
}

// HandleListCalls returns the newest call records between users a and b.
func HandleListCalls(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		a, b := query.Get("a"), query.Get("b")

		if !user.IsValidName(a) || !user.IsValidName(b) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		limit := defaultCallsLimit
		if raw := query.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = min(n, maxCallsLimit)
		}

		if deps.CallLog == nil {
			resp.RespondSuccess(w, r, []calllog.Entry{})
			return
		}

		entries, err := deps.CallLog.List(r.Context(), a, b, limit)
		if err != nil {
			logx.Error(err, "Failed to list call records", "a", a, "b", b)
			resp.RespondError(w, r, errs.NewError(errs.ErrServer))
			return
		}

		resp.RespondSuccess(w, r, entries)
	}
}
