package types

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	wire "github.com/DoyleJ11/glitch-battleship/pkg/types"
)

// ClientMessage is the inbound envelope; Payload is decoded once Type is known.
type ClientMessage struct {
	Type    string          `json:"type"` // "joinRoom" | "placeFleet" | "attack"
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string       `json:"type"`
	Payload wire.Payload `json:"payload"`
}

func Wrap(p wire.Payload) ServerMessage {
	return ServerMessage{Type: p.Kind(), Payload: p}
}

func Error(code, message string) ServerMessage {
	return Wrap(wire.ErrorMessage{Code: code, Message: message})
}

// CleanID trims and NFC-normalises a room, team or user id so the same name
// typed on different clients maps to one key.
func CleanID(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
