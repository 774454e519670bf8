package redconn

import (
	"context"
	"encoding/base64"
)

// Event is one inbound message event from the Red gateway.
type Event struct {
	Type      string `json:"type"`
	SelfID    string `json:"self_id"`
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
}

const EventTypeMessage = "message"

type Sender struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// DisplayName returns the sender's nickname, falling back to the raw id.
func (s Sender) DisplayName() string {
	if s.Nickname != "" {
		return s.Nickname
	}
	return s.ID
}

// Segment is one element of an outbound composed message.
type Segment struct {
	Type string `json:"type"`
	// Text content for "text" segments.
	Text string `json:"text,omitempty"`
	// Base64 payload for "image" segments.
	Data string `json:"data,omitempty"`
	// Target user id for "at" segments.
	Target string `json:"target,omitempty"`
	// Quoted message id for "reply" segments.
	MessageID string `json:"message_id,omitempty"`
}

const (
	SegmentText  = "text"
	SegmentImage = "image"
	SegmentAt    = "at"
	SegmentReply = "reply"
)

func Text(s string) Segment { return Segment{Type: SegmentText, Text: s} }

func Image(raw []byte) Segment {
	return Segment{Type: SegmentImage, Data: base64.StdEncoding.EncodeToString(raw)}
}

func At(userID string) Segment { return Segment{Type: SegmentAt, Target: userID} }

func Reply(messageID string) Segment { return Segment{Type: SegmentReply, MessageID: messageID} }

// sendFrame is the outbound wire envelope for composed messages.
type sendFrame struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id"`
	Segments  []Segment `json:"segments"`
}

// Egress sends a composed message into a channel. Implemented by the gateway
// client; narrow so handlers can be tested against a capture fake.
type Egress interface {
	Send(ctx context.Context, channelID string, segments []Segment) error
}

// EventCallback receives every inbound gateway event.
type EventCallback func(ev *Event)
