package presence

import (
	"time"

	"callrelay/internal/app/calllog"
	"callrelay/internal/app/user"
	"callrelay/internal/pkg/errs"
)

// RequestCall rings target on behalf of caller. Both must be idle; the caller moves to
// StateCalling, the target to StateRinging, and the target receives incoming_call.
func (r *Registry) RequestCall(callerName, targetName string, timestamp any) *errs.CustomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	caller, ok := r.users[callerName]
	if !ok {
		return errs.NewError(errs.ErrUserNotFound)
	}
	if callerName == targetName {
		return errs.NewError(errs.ErrSelfCall)
	}

	target, ok := r.users[targetName]
	if !ok {
		return errs.NewError(errs.ErrTargetNotFound)
	}

	if caller.State != user.StateIdle {
		return errs.NewError(errs.ErrCallerBusy)
	}

	now := r.now()

	if target.State != user.StateIdle {
		r.record(callerName, targetName, calllog.StatusBusy, "", now)
		r.logger.Debug().Str("caller", callerName).Str("target", targetName).Msg("Call rejected, target busy.")
		return errs.NewError(errs.ErrTargetBusy)
	}

	caller.SetCall(user.StateCalling, targetName, now)
	target.SetCall(user.StateRinging, callerName, now)

	r.dispatcher.Send(target.ConnectionID, EventIncomingCall, CallPayload{From: callerName, Timestamp: timestamp})
	r.record(callerName, targetName, calllog.StatusRequest, "", now)

	r.logger.Info().Str("caller", callerName).Str("target", targetName).Msg("Call ringing.")
	return nil
}

// AcceptCall answers the ring from caller. Both move to StateInCall and the caller receives
// call_accepted. A ring that was cancelled or expired yields ErrStaleAccept.
func (r *Registry) AcceptCall(accepterName, callerName string, timestamp any) *errs.CustomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepter, ok := r.users[accepterName]
	if !ok {
		return errs.NewError(errs.ErrUserNotFound)
	}
	caller, ok := r.users[callerName]
	if !ok {
		return errs.NewError(errs.ErrUserNotFound)
	}

	if accepter.State != user.StateRinging || accepter.Partner != callerName ||
		caller.State != user.StateCalling || caller.Partner != accepterName {
		r.logger.Debug().Str("accepter", accepterName).Str("caller", callerName).Msg("Stale accept ignored.")
		return errs.NewError(errs.ErrStaleAccept)
	}

	now := r.now()
	accepter.SetCall(user.StateInCall, callerName, now)
	caller.SetCall(user.StateInCall, accepterName, now)

	r.dispatcher.Send(caller.ConnectionID, EventCallAccepted, CallPayload{From: accepterName, Timestamp: timestamp})
	r.record(accepterName, callerName, calllog.StatusAccepted, "", now)

	r.logger.Info().Str("caller", callerName).Str("accepter", accepterName).Msg("Call accepted.")
	return nil
}

// EndCall hangs up between ender and other. It never fails and may be repeated.
//
// The ender and its partner return to idle. The other party is reset and receives end_call
// when it is partnered with the ender or already idle, so an idle other is notified even when
// no call existed. A call other holds with a third user is intentionally left alone, which keeps
// every partnership symmetric.
func (r *Registry) EndCall(enderName, otherName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if ender, ok := r.users[enderName]; ok && ender.Partner != "" {
		if partner, ok := r.users[ender.Partner]; ok && partner.Partner == enderName && partner.Name != otherName {
			partner.ClearCall(now)
			r.dispatcher.Send(partner.ConnectionID, EventEndCall, EndCallPayload{From: enderName})
		}

		r.record(enderName, ender.Partner, endStatus(ender.State), calllog.ReasonHangup, now)
		ender.ClearCall(now)
	}

	other, ok := r.users[otherName]
	if !ok || otherName == enderName {
		return
	}

	if other.Partner == enderName || other.State == user.StateIdle {
		other.ClearCall(now)
		r.dispatcher.Send(other.ConnectionID, EventEndCall, EndCallPayload{From: enderName})
	}
}

// ExpireRings ends every ring that has gone unanswered for longer than timeout.
// Both sides return to idle and receive end_call with reason no_answer.
func (r *Registry) ExpireRings(timeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expired := 0

	for _, name := range r.order {
		caller := r.users[name]
		if caller.State != user.StateCalling || now.Sub(caller.StateSince) <= timeout {
			continue
		}

		if callee, ok := r.users[caller.Partner]; ok && callee.Partner == caller.Name {
			callee.ClearCall(now)
			r.dispatcher.Send(callee.ConnectionID, EventEndCall, EndCallPayload{From: caller.Name, Reason: calllog.ReasonNoAnswer})
		}
		r.dispatcher.Send(caller.ConnectionID, EventEndCall, EndCallPayload{From: caller.Partner, Reason: calllog.ReasonNoAnswer})

		r.record(caller.Name, caller.Partner, calllog.StatusMissed, calllog.ReasonNoAnswer, now)
		caller.ClearCall(now)
		expired++
	}

	if expired > 0 {
		r.logger.Info().Int("expired", expired).Dur("timeout", timeout).Msg("Unanswered rings expired.")
	}
	return expired
}

// cascadeLocked ends the call u takes part in before u leaves the registry.
// The partner is reset and receives exactly one end_call.
func (r *Registry) cascadeLocked(u *user.User, reason string) {
	if u == nil || u.Partner == "" {
		return
	}

	now := r.now()

	if partner, ok := r.users[u.Partner]; ok && partner.Partner == u.Name {
		partner.ClearCall(now)
		r.dispatcher.Send(partner.ConnectionID, EventEndCall, EndCallPayload{From: u.Name, Reason: reason})
	}

	r.record(u.Name, u.Partner, endStatus(u.State), reason, now)
	u.ClearCall(now)
}

// endStatus names how a call ended given the ending party's state.
func endStatus(state user.CallState) calllog.Status {
	switch state {
	case user.StateCalling:
		return calllog.StatusCancelled
	case user.StateRinging:
		return calllog.StatusRejected
	default:
		return calllog.StatusEnded
	}
}

func (r *Registry) record(from, to string, status calllog.Status, reason string, at time.Time) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(calllog.Entry{From: from, To: to, Status: status, Reason: reason, RecordedAt: at})
}
