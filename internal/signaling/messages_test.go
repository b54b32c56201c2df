package signaling

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseEnvelope_Valid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want eventType
	}{
		{"join", `{"type":"join-room","roomId":"abc","userId":"alice"}`, eventJoinRoom},
		{"offer", `{"type":"offer","roomId":"abc","userId":"alice","payload":{"type":"offer","sdp":"v=0"}}`, eventOffer},
		{"answer", `{"type":"answer","roomId":"abc","userId":"bob","payload":{"type":"answer","sdp":"v=0"}}`, eventAnswer},
		{"candidate", `{"type":"ice-candidate","roomId":"abc","userId":"alice","payload":{"candidate":"candidate:1"}}`, eventICECandidate},
		{"transcript", `{"type":"transcript","roomId":"abc","userId":"alice","text":"hello","isFinal":true}`, eventTranscript},
		{"interim transcript", `{"type":"transcript","roomId":"abc","userId":"alice","text":"hel","isFinal":false}`, eventTranscript},
		{"empty transcript text", `{"type":"transcript","roomId":"abc","userId":"alice","isFinal":false}`, eventTranscript},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := parseEnvelope([]byte(tc.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if env.Type != tc.want {
				t.Fatalf("type = %q, want %q", env.Type, tc.want)
			}
		})
	}
}

func TestParseEnvelope_PayloadStaysOpaque(t *testing.T) {
	raw := `{"type":"offer","roomId":"abc","userId":"alice","payload":{"sdp":"v=0\r\n","nested":{"deep":[1,2,3]}}}`
	env, err := parseEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var echo map[string]any
	if err := json.Unmarshal(env.Payload, &echo); err != nil {
		t.Fatalf("payload is not raw JSON: %v", err)
	}
	if _, ok := echo["nested"]; !ok {
		t.Fatalf("payload lost structure: %s", env.Payload)
	}
}

func TestParseEnvelope_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"shrug","roomId":"abc","userId":"alice"}`},
		{"unknown field", `{"type":"join-room","roomId":"abc","userId":"alice","extra":1}`},
		{"trailing data", `{"type":"join-room","roomId":"abc","userId":"alice"}{"type":"offer"}`},
		{"join missing room", `{"type":"join-room","userId":"alice"}`},
		{"join missing user", `{"type":"join-room","roomId":"abc"}`},
		{"join with payload", `{"type":"join-room","roomId":"abc","userId":"alice","payload":{}}`},
		{"offer missing payload", `{"type":"offer","roomId":"abc","userId":"alice"}`},
		{"offer missing user", `{"type":"offer","roomId":"abc","payload":{}}`},
		{"transcript missing isFinal", `{"type":"transcript","roomId":"abc","userId":"alice","text":"hi"}`},
		{"outbound room-users", `{"type":"room-users","roomId":"abc","users":["alice"]}`},
		{"outbound user-connected", `{"type":"user-connected","userId":"alice"}`},
		{"outbound error", `{"type":"error","code":"x","message":"y"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseEnvelope([]byte(tc.raw)); err == nil {
				t.Fatalf("expected error for %s", tc.raw)
			}
		})
	}
}

func TestOutboundFrames(t *testing.T) {
	var env envelope
	if err := json.Unmarshal(rosterFrame("abc", []string{"alice", "bob"}), &env); err != nil {
		t.Fatalf("unmarshal roster: %v", err)
	}
	if env.Type != eventRoomUsers || env.RoomID != "abc" || len(env.Users) != 2 {
		t.Fatalf("unexpected roster frame: %+v", env)
	}

	if err := json.Unmarshal(userConnectedFrame("bob"), &env); err != nil {
		t.Fatalf("unmarshal notice: %v", err)
	}
	if env.Type != eventUserConnected || env.UserID != "bob" {
		t.Fatalf("unexpected user-connected frame: %+v", env)
	}

	if err := json.Unmarshal(errorFrame("room_full", "room is full"), &env); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if env.Type != eventError || env.Code != "room_full" {
		t.Fatalf("unexpected error frame: %+v", env)
	}
}

func TestRosterFrame_EmptyRosterHasNoUsersKey(t *testing.T) {
	// Outbound frames use omitempty; an empty roster should not serialize a
	// "users" key at all rather than "users":null.
	raw := string(rosterFrame("abc", nil))
	if strings.Contains(raw, "users") {
		t.Fatalf("expected users omitted from %s", raw)
	}
}
