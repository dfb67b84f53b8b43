package call

import "fmt"

// Phase is where a call session is in its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRinging
	PhaseConnecting
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRinging:
		return "ringing"
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Trigger is an input to the phase machine.
type Trigger int

const (
	// TriggerIncoming is an "incoming call" event from the channel.
	TriggerIncoming Trigger = iota
	// TriggerDial is the local user placing a call.
	TriggerDial
	// TriggerAccept is local media being attached to the call.
	TriggerAccept
	// TriggerRemoteStream is the peer connection producing a remote stream.
	TriggerRemoteStream
	// TriggerEnd covers every teardown path.
	TriggerEnd
	// TriggerReset returns an ended session to idle.
	TriggerReset
)

func (t Trigger) String() string {
	switch t {
	case TriggerIncoming:
		return "incoming"
	case TriggerDial:
		return "dial"
	case TriggerAccept:
		return "accept"
	case TriggerRemoteStream:
		return "remote-stream"
	case TriggerEnd:
		return "end"
	case TriggerReset:
		return "reset"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Transition is the only place phases change. A remote stream that arrives
// while still ringing leaves the phase alone; the stream is kept and the call
// goes active once accepted.
func Transition(from Phase, t Trigger) (Phase, error) {
	switch {
	case from == PhaseIdle && (t == TriggerIncoming || t == TriggerDial):
		return PhaseRinging, nil
	case from == PhaseRinging && t == TriggerAccept:
		return PhaseConnecting, nil
	case from == PhaseRinging && t == TriggerRemoteStream:
		return PhaseRinging, nil
	case from == PhaseConnecting && t == TriggerRemoteStream:
		return PhaseActive, nil
	case from == PhaseActive && t == TriggerRemoteStream:
		return PhaseActive, nil
	case t == TriggerEnd && (from == PhaseRinging || from == PhaseConnecting || from == PhaseActive):
		return PhaseEnded, nil
	case from == PhaseEnded && t == TriggerReset:
		return PhaseIdle, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, t, from)
}
