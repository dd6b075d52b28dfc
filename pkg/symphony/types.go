package symphony

// Wire types for the platform REST surface. Each response is modelled as an
// explicit schema validated at the network boundary: unknown fields are
// ignored, missing required fields surface as an UpstreamError from the call
// that decoded them.

// Stream types as reported by the pod.
const (
	StreamTypeIM   = "IM"
	StreamTypeMIM  = "MIM"
	StreamTypeRoom = "ROOM"
)

// StreamType wraps the nested type discriminator of a stream listing entry.
type StreamType struct {
	Type string `json:"type"`
}

// RoomAttributes carries the room-only metadata of a stream. ViewHistory is
// a pointer because the pod omits it for streams where the policy does not
// apply; only an explicit false disables history for late joiners.
type RoomAttributes struct {
	Name        string `json:"name,omitempty"`
	ViewHistory *bool  `json:"viewHistory,omitempty"`
}

// Stream is one conversation stream (1:1 IM, multi-party IM, or room) from
// the stream listing. Immutable once fetched.
type Stream struct {
	ID             string          `json:"id"`
	CrossPod       bool            `json:"crossPod"`
	Active         bool            `json:"active"`
	StreamType     StreamType      `json:"streamType"`
	RoomAttributes *RoomAttributes `json:"roomAttributes,omitempty"`
}

// Name returns the room display name, or "" for IM/MIM streams.
func (s Stream) Name() string {
	if s.RoomAttributes == nil {
		return ""
	}
	return s.RoomAttributes.Name
}

// MemberUser identifies the user behind a membership entry.
type MemberUser struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Member is one entry of a stream's membership list.
type Member struct {
	User      MemberUser `json:"user"`
	IsOwner   bool       `json:"isOwner"`
	IsCreator bool       `json:"isCreator"`
	JoinDate  int64      `json:"joinDate"` // epoch milliseconds
}

// MessageUser identifies the sender of a message. System messages have none.
type MessageUser struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Message is one message from the agent's stream-message listing. The body
// is the platform's HTML-ish markup as delivered.
type Message struct {
	MessageID string       `json:"messageId"`
	Timestamp int64        `json:"timestamp"` // epoch milliseconds
	Message   string       `json:"message"`
	User      *MessageUser `json:"user,omitempty"`
}

// RoomInfo is the pod's room-info lookup response, reduced to the attributes
// the export pipeline inspects.
type RoomInfo struct {
	RoomAttributes *RoomAttributes `json:"roomAttributes"`
}

// Session is the credential bundle for one export run. It is constructed by
// the credential chain, passed by reference through the pipeline, and
// discarded when the run ends; nothing is persisted or shared across runs.
type Session struct {
	AppToken string
	OBOToken string

	BotSessionToken    string
	BotKeyManagerToken string

	CEEnabled         bool
	CESessionToken    string
	CEKeyManagerToken string
}

// MessageTokens returns the session/key-manager token pair for privileged
// message reads. Compliance-export tokens supersede the bot's own tokens for
// message retrieval only; every other call keeps using the bot tokens.
func (s *Session) MessageTokens() (sessionToken, keyManagerToken string) {
	if s.CEEnabled {
		return s.CESessionToken, s.CEKeyManagerToken
	}
	return s.BotSessionToken, s.BotKeyManagerToken
}

// EventUser identifies the author of a datafeed event.
type EventUser struct {
	UserID      int64  `json:"userId"`
	FirstName   string `json:"firstName"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// EventStream locates the stream a datafeed event happened in.
type EventStream struct {
	StreamID   string `json:"streamId"`
	StreamType string `json:"streamType"`
}

// EventMessage is the message payload of a MESSAGESENT datafeed event.
type EventMessage struct {
	MessageID string      `json:"messageId"`
	Timestamp int64       `json:"timestamp"`
	Message   string      `json:"message"`
	User      EventUser   `json:"user"`
	Stream    EventStream `json:"stream"`
}

// DatafeedEvent is one event from the agent's datafeed read endpoint.
type DatafeedEvent struct {
	Type    string `json:"type"`
	Payload struct {
		MessageSent struct {
			Message *EventMessage `json:"message"`
		} `json:"messageSent"`
	} `json:"payload"`
}

// EventTypeMessageSent is the datafeed event type the bot reacts to.
const EventTypeMessageSent = "MESSAGESENT"
