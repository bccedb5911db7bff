package session

import "errors"

var (
	ErrNotFound        = errors.New("session: not found")
	ErrDuplicateKey    = errors.New("session: duplicate id")
	ErrTooManySessions = errors.New("session: too many sessions")
	ErrSessionClosed   = errors.New("session: closed")
	// ErrOfferRejected is returned for an offer that arrives while a session is
	// already live on the channel. The existing session wins.
	ErrOfferRejected = errors.New("session: offer rejected, session already active")
	ErrInvalidOffer  = errors.New("session: invalid offer")
)
