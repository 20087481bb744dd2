package models

// Event names a frame on the signaling socket.
type Event string

// Inbound events, bound once per connection.
const (
	EventCallJoin        Event = "call:join"
	EventCallLeave       Event = "call:leave"
	EventCallPCOffer     Event = "call:pc-offer"
	EventCallPCAnswer    Event = "call:pc-answer"
	EventCallPCCandidate Event = "call:pc-ice-candidate"
	EventCallMessage     Event = "call:message"
	EventCallMessages    Event = "call:messages"
)

// Outbound-only events. Offer, answer, candidate, message and messages are
// echoed back under their inbound names.
const (
	EventCallJoined           Event = "call:joined"
	EventCallUserJoined       Event = "call:user-joined"
	EventCallUserLeft         Event = "call:user-left"
	EventCallUserDisconnected Event = "call:user-disconnected"
)

// Unauthorized is sent as a bare text frame, not an envelope, before the
// socket is closed.
const Unauthorized = "unauthorized"

// CallRef is the part of every inbound payload that names the call.
type CallRef struct {
	ID string `json:"id"`
}

// ChatRequest is the call:message payload.
type ChatRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MemberEvent is sent for join, leave and disconnect notifications.
type MemberEvent struct {
	ID   string `json:"id"`
	User User   `json:"user"`
}

// RosterEvent is sent to a joiner with the full post-join roster.
type RosterEvent struct {
	ID    string `json:"id"`
	Users []User `json:"users"`
}

// ChatEvent carries one new chat message.
type ChatEvent struct {
	ID      string  `json:"id"`
	Message Message `json:"message"`
}

// HistoryEvent carries the ordered chat history of a call.
type HistoryEvent struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}
