// Package capture obtains the user's consent to capture a display
// and grabs frames from the granted display.
package capture

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid"
)

var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrTokenClaimed     = errors.New("capture token is already claimed")
	ErrTokenInvalid     = errors.New("capture token is no longer valid")
	ErrNoDisplay        = errors.New("no such display")
)

// Token is an opaque single-use authorization to capture one display.
// It is valid until released by its owner or revoked by the system.
type Token struct {
	id      string
	display int
	bounds  image.Rectangle

	claimed  atomic.Bool
	released atomic.Bool
	revoke   sync.Once
	revoked  chan struct{}
}

func NewToken(display int, bounds image.Rectangle) *Token {
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Nil
	}
	return &Token{id: id.String(), display: display, bounds: bounds, revoked: make(chan struct{})}
}

func (t *Token) Id() string              { return t.id }
func (t *Token) Display() int            { return t.display }
func (t *Token) Bounds() image.Rectangle { return t.bounds }

// Claim binds the token to a capture source.
// Only the first call succeeds.
func (t *Token) Claim() error {
	if !t.Valid() {
		return ErrTokenInvalid
	}
	if !t.claimed.CompareAndSwap(false, true) {
		return ErrTokenClaimed
	}
	return nil
}

func (t *Token) IsClaimed() bool { return t.claimed.Load() }

// Revoke invalidates the token from the system side,
// e.g. when the display is gone or the capture keeps failing.
func (t *Token) Revoke() { t.revoke.Do(func() { close(t.revoked) }) }

// Revoked is closed once the token is revoked.
func (t *Token) Revoked() <-chan struct{} { return t.revoked }

func (t *Token) IsRevoked() bool {
	select {
	case <-t.revoked:
		return true
	default:
		return false
	}
}

// Release gives the token back when its owner is done with it.
// A released token is never reported as revoked.
func (t *Token) Release() { t.released.Store(true) }

func (t *Token) IsReleased() bool { return t.released.Load() }

func (t *Token) Valid() bool { return !t.IsReleased() && !t.IsRevoked() }
