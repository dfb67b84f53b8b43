package relay

import (
	"errors"

	"github.com/agora-social/agora-cli/pkg/channel"
)

var (
	ErrNoRecipient   = errors.New("event has no recipient")
	ErrServerOnly    = errors.New("event may only be sent by the relay")
	ErrSelfAddressed = errors.New("event is addressed to its sender")
)

// Route decides who receives an event sent by from and rewrites the sender
// fields to the authenticated user. A call offer reaches its receiver as an
// incoming call.
func Route(from string, ev channel.Event) (string, channel.Event, error) {
	var to string
	var out channel.Event

	switch ev := ev.(type) {
	case channel.CallUser:
		info := ev.CallInfo
		info.SenderID = from
		to, out = info.ReceiverID, channel.IncomingCall{CallInfo: info}
	case channel.Signal:
		ev.From = from
		to, out = ev.To, ev
	case channel.RejectCall:
		ev.From = from
		to, out = ev.To, ev
	case channel.HangupCall:
		ev.From = from
		to, out = ev.To, ev
	case channel.ChatMessage:
		ev.SenderID = from
		to, out = ev.ReceiverID, ev
	default:
		return "", nil, ErrServerOnly
	}

	if to == "" {
		return "", nil, ErrNoRecipient
	}
	if to == from {
		return "", nil, ErrSelfAddressed
	}
	return to, out, nil
}
