package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"roulette-engine/internal/game"
	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/service"
)

var (
	errMalformed    = errors.New("malformed request")
	errUnknownEvent = errors.New("unknown event")
	errNotJoined    = errors.New("join a room first")
	errWrongRoom    = errors.New("not seated in that room")
	errMissingUser  = errors.New("userId is required")
	errRebind       = errors.New("connection already belongs to another player")
	errUnavailable  = errors.New("not available on this server")
	errInternal     = errors.New("internal error, please retry")
)

// clientErrors are safe to show to players verbatim.
var clientErrors = []error{
	errMalformed,
	errUnknownEvent,
	errNotJoined,
	errWrongRoom,
	errMissingUser,
	errRebind,
	errUnavailable,
	roulette.ErrInvalidBetKey,
	roulette.ErrRuleConflict,
	roulette.ErrInsufficientBalance,
	roulette.ErrWrongPhase,
	roulette.ErrInvalidAmount,
	roulette.ErrStakeLimit,
	roulette.ErrPlayerNotFound,
	roulette.ErrNothingToRepeat,
	roulette.ErrBetsAlreadyPlaced,
	roulette.ErrNoBets,
	roulette.ErrTableClosed,
	game.ErrAlreadySeated,
	game.ErrRoomFull,
	game.ErrNotSeated,
	game.ErrInvalidRoom,
	service.ErrInvalidBalance,
}

// errorMessage returns the player-facing text for err. Anything unexpected
// is reported generically.
func errorMessage(err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return errInternal.Error()
}

// HandlerFunc serves one event.
type HandlerFunc func(ctx context.Context, s Session, req Request) (Ack, error)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// RecoveryMiddleware turns a panic in a handler into an internal error ack.
func RecoveryMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, s Session, req Request) (ack Ack, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event", req.Event).
						Str("player_id", s.PlayerID()).
						Msg("Recovered from panic in handler")
					ack, err = Ack{}, errInternal
				}
			}()
			return next(ctx, s, req)
		}
	}
}

// LoggingMiddleware logs every handled event.
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, s Session, req Request) (Ack, error) {
			start := time.Now()
			ack, err := next(ctx, s, req)

			logEvent := log.Debug()
			if err != nil && errorMessage(err) == errInternal.Error() {
				logEvent = log.Error().Err(err)
			} else if err != nil {
				logEvent = log.Debug().Str("rejected", err.Error())
			}
			logEvent.
				Str("event", req.Event).
				Str("player_id", s.PlayerID()).
				Str("room_id", s.RoomID()).
				Dur("took", time.Since(start)).
				Msg("Handled event")

			return ack, err
		}
	}
}

// TimeoutMiddleware bounds the context handed to a handler.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, s Session, req Request) (Ack, error) {
			if d <= 0 {
				return next(ctx, s, req)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, s, req)
		}
	}
}

// chain applies middlewares so that the first one listed runs outermost.
func chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
