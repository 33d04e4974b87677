package session

// State is the lifecycle state of a capture session.
type State int32

const (
	Idle State = iota
	PermissionRequested
	PermissionDenied
	CaptureAcquiring
	AcquireFailed
	OfferPending
	Negotiating
	Connected
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PermissionRequested:
		return "permission_requested"
	case PermissionDenied:
		return "permission_denied"
	case CaptureAcquiring:
		return "capture_acquiring"
	case AcquireFailed:
		return "acquire_failed"
	case OfferPending:
		return "offer_pending"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal tells that the session is over.
func (s State) IsTerminal() bool {
	switch s {
	case PermissionDenied, AcquireFailed, Stopped, Failed:
		return true
	}
	return false
}
