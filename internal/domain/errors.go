package domain

import "errors"

// Rechazos de PlacePosition. Ninguno muta estado.
var (
	ErrUnknownMarket       = errors.New("unknown market")
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrStakeNotAllowed     = errors.New("stake not in allowed set")
	ErrFeedNotLive         = errors.New("price feed not live")
	ErrRoundNotOpen        = errors.New("round has no open price yet")
	ErrRoundLocked         = errors.New("round no longer accepts positions")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrEngineStopped       = errors.New("engine stopped")
)

// RejectReason devuelve una etiqueta corta para métricas y logs.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownMarket):
		return "unknown_market"
	case errors.Is(err, ErrInvalidDirection):
		return "invalid_direction"
	case errors.Is(err, ErrStakeNotAllowed):
		return "stake_not_allowed"
	case errors.Is(err, ErrFeedNotLive):
		return "feed_not_live"
	case errors.Is(err, ErrRoundNotOpen):
		return "round_not_open"
	case errors.Is(err, ErrRoundLocked):
		return "round_locked"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrEngineStopped):
		return "engine_stopped"
	}
	return "other"
}
