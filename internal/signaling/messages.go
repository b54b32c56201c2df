package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type eventType string

// Inbound event types (client -> relay).
const (
	eventJoinRoom     eventType = "join-room"
	eventOffer        eventType = "offer"
	eventAnswer       eventType = "answer"
	eventICECandidate eventType = "ice-candidate"
	eventTranscript   eventType = "transcript"
)

// Outbound event types (relay -> client).
const (
	eventRoomUsers        eventType = "room-users"
	eventUserConnected    eventType = "user-connected"
	eventUserDisconnected eventType = "user-disconnected"
	eventError            eventType = "error"
)

// envelope is the single JSON frame shape used in both directions. Negotiation
// payloads stay raw bytes end to end; the relay never inspects them.
type envelope struct {
	Type   eventType `json:"type"`
	RoomID string    `json:"roomId,omitempty"`
	UserID string    `json:"userId,omitempty"`

	// Payload carries the opaque session description or candidate for
	// offer/answer/ice-candidate events.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Transcript fields. IsFinal is a pointer so inbound validation can tell
	// "false" from "absent".
	Text    string `json:"text,omitempty"`
	IsFinal *bool  `json:"isFinal,omitempty"`

	// Users is the roster carried by room-users frames.
	Users []string `json:"users,omitempty"`

	// Error frame fields.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// parseEnvelope strictly decodes one inbound frame. Unknown fields, trailing
// data, and outbound-only event types are all rejected; the caller drops such
// frames without disturbing the connection.
func parseEnvelope(data []byte) (envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return envelope{}, fmt.Errorf("unexpected trailing data")
	}
	if err := env.validateInbound(); err != nil {
		return envelope{}, err
	}
	return env, nil
}

func (e envelope) validateInbound() error {
	switch e.Type {
	case eventJoinRoom:
		if e.RoomID == "" || e.UserID == "" {
			return fmt.Errorf("join-room requires roomId and userId")
		}
		if e.Payload != nil || e.Text != "" || e.IsFinal != nil || e.Users != nil {
			return fmt.Errorf("join-room has unexpected fields")
		}
	case eventOffer, eventAnswer, eventICECandidate:
		if e.RoomID == "" || e.UserID == "" {
			return fmt.Errorf("%s requires roomId and userId", e.Type)
		}
		if len(e.Payload) == 0 {
			return fmt.Errorf("%s requires a payload", e.Type)
		}
		if e.Text != "" || e.IsFinal != nil || e.Users != nil {
			return fmt.Errorf("%s has unexpected fields", e.Type)
		}
	case eventTranscript:
		if e.RoomID == "" || e.UserID == "" {
			return fmt.Errorf("transcript requires roomId and userId")
		}
		if e.IsFinal == nil {
			return fmt.Errorf("transcript requires isFinal")
		}
		if e.Payload != nil || e.Users != nil {
			return fmt.Errorf("transcript has unexpected fields")
		}
	case eventRoomUsers, eventUserConnected, eventUserDisconnected, eventError:
		return fmt.Errorf("%s is not valid inbound", e.Type)
	default:
		return fmt.Errorf("unsupported event type %q", e.Type)
	}
	if e.Code != "" || e.Message != "" {
		return fmt.Errorf("%s has unexpected fields", e.Type)
	}
	return nil
}

func marshalEnvelope(env envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// All envelope fields are marshalable; this cannot fail at runtime.
		panic(err)
	}
	return data
}

func rosterFrame(roomID string, users []string) []byte {
	return marshalEnvelope(envelope{Type: eventRoomUsers, RoomID: roomID, Users: users})
}

func userConnectedFrame(userID string) []byte {
	return marshalEnvelope(envelope{Type: eventUserConnected, UserID: userID})
}

func userDisconnectedFrame(userID string) []byte {
	return marshalEnvelope(envelope{Type: eventUserDisconnected, UserID: userID})
}

func errorFrame(code, message string) []byte {
	return marshalEnvelope(envelope{Type: eventError, Code: code, Message: message})
}
