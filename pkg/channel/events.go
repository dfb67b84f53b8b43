package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// EventName is the wire name of a channel event.
type EventName string

const (
	EventIncomingCall EventName = "incoming call"
	EventCallUser     EventName = "call user"
	EventSignal       EventName = "signal"
	EventRejectCall   EventName = "reject call"
	EventHangupCall   EventName = "hangup call"
	EventChatMessage  EventName = "chat message"
	EventNotify       EventName = "notify"
)

// ErrUnknownEvent is returned by Decode for frames whose type is not part of
// the event union.
var ErrUnknownEvent = errors.New("unknown channel event")

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is the closed set of messages carried by the channel. Consumers
// type-switch on the concrete value types below.
type Event interface {
	Name() EventName
	event()
}

// CallInfo describes a call offer. The receiver fields are display metadata
// denormalized by the caller.
type CallInfo struct {
	IsVideoCall    bool   `json:"isVideoCall"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName,omitempty"`
	SenderAvatar   string `json:"senderAvatar,omitempty"`
	ReceiverID     string `json:"receiverId"`
	ReceiverName   string `json:"receiverName,omitempty"`
	ReceiverAvatar string `json:"receiverAvatar,omitempty"`
}

// IncomingCall is delivered to the receiver of a call offer.
type IncomingCall struct {
	CallInfo
}

// CallUser is emitted by the caller to start ringing the receiver.
type CallUser struct {
	CallInfo
}

// Signal carries an opaque peer-connection payload (SDP or ICE candidate).
type Signal struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}

// RejectCall tells the other participant the call was declined.
type RejectCall struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HangupCall tells the other participant the call is over.
type HangupCall struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChatMessage is one pushed direct message.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	SenderAvatar   string    `json:"senderAvatar,omitempty"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notify is one pushed notification.
type Notify struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	SenderID   string    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Link       string    `json:"link,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (IncomingCall) Name() EventName { return EventIncomingCall }
func (CallUser) Name() EventName     { return EventCallUser }
func (Signal) Name() EventName       { return EventSignal }
func (RejectCall) Name() EventName   { return EventRejectCall }
func (HangupCall) Name() EventName   { return EventHangupCall }
func (ChatMessage) Name() EventName  { return EventChatMessage }
func (Notify) Name() EventName       { return EventNotify }

func (IncomingCall) event() {}
func (CallUser) event()     {}
func (Signal) event()       {}
func (RejectCall) event()   {}
func (HangupCall) event()   {}
func (ChatMessage) event()  {}
func (Notify) event()       {}

// frame is the JSON envelope on the wire.
type frame struct {
	Type    EventName       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes ev into a wire frame.
func Encode(ev Event) ([]byte, error) {
	payload, err := codec.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Name(), err)
	}
	return codec.Marshal(frame{Type: ev.Name(), Payload: payload})
}

// Decode parses a wire frame into its event type.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := codec.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case EventIncomingCall:
		return decodePayload[IncomingCall](f)
	case EventCallUser:
		return decodePayload[CallUser](f)
	case EventSignal:
		return decodePayload[Signal](f)
	case EventRejectCall:
		return decodePayload[RejectCall](f)
	case EventHangupCall:
		return decodePayload[HangupCall](f)
	case EventChatMessage:
		return decodePayload[ChatMessage](f)
	case EventNotify:
		return decodePayload[Notify](f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
	}
}

func decodePayload[T Event](f frame) (Event, error) {
	var ev T
	if len(f.Payload) > 0 {
		if err := codec.Unmarshal(f.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", f.Type, err)
		}
	}
	return ev, nil
}
