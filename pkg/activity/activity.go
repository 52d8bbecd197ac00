// Package activity defines the boundary-only Activity projection and the
// bidirectional mapping between it and the wire-level protocol types in
// pkg/protocol.
package activity

// DeliveryMode selects how the adapter expects replies to an Activity to be
// delivered back to the caller.
type DeliveryMode string

const (
	DeliveryModeStream         DeliveryMode = "stream"
	DeliveryModeExpectReplies  DeliveryMode = "expect-replies"
)

// InputHint tells the relay/engine whether the agent expects further input
// before the turn can be considered settled.
type InputHint string

const (
	InputHintExpectingInput InputHint = "expecting-input"
	InputHintAcceptingInput InputHint = "accepting-input"
	InputHintIgnoringInput  InputHint = "ignoring-input"
)

// EndOfConversationCode classifies why a turn ended, independent of the
// task's resulting lifecycle state.
type EndOfConversationCode string

const (
	CodeUnknown       EndOfConversationCode = ""
	CodeUserCancelled EndOfConversationCode = "user-cancelled"
	CodeError         EndOfConversationCode = "error"
)

// ConversationReference identifies the conversation an Activity belongs to.
type ConversationReference struct {
	ID string `json:"id"`
}

// ChannelAccount identifies a participant (from/recipient) on an Activity.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Attachment is a file-like payload carried inline or by reference.
type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Entity is a typed side-channel annotation on an Activity (e.g. structured
// data the caller wants round-tripped as a DataPart).
type Entity struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// wellKnownStreamInfoEntityType marks entities the mapper omits from the
// outbound Artifact/Message projection: they carry transport bookkeeping,
// not conversational content.
const wellKnownStreamInfoEntityType = "streaminfo"

// Activity is the internal, rich conversational message that the engine and
// worker pool operate on. Only the projection named in the system overview
// is modeled; anything beyond it is out of scope (see DESIGN.md).
type Activity struct {
	Type         string                `json:"type"`
	ID           string                `json:"id,omitempty"`
	ChannelID    string                `json:"channelId"`
	DeliveryMode DeliveryMode          `json:"deliveryMode,omitempty"`
	Conversation ConversationReference `json:"conversation"`
	From         ChannelAccount        `json:"from"`
	Recipient    ChannelAccount        `json:"recipient"`

	Text        string                `json:"text,omitempty"`
	Value       any                   `json:"value,omitempty"`
	Attachments []Attachment          `json:"attachments,omitempty"`
	Entities    []Entity              `json:"entities,omitempty"`
	InputHint   InputHint             `json:"inputHint,omitempty"`
	Code        EndOfConversationCode `json:"code,omitempty"`
}

// ChannelIDA2A is the fixed channelId stamped on every Activity produced
// from an A2A protocol message.
const ChannelIDA2A = "A2A"
