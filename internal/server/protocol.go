package server

import "github.com/perfect-stream/backend/internal/stream"

type MessageType string

const (
	MsgResult MessageType = "result"
	MsgError  MessageType = "error"
)

// WSMessage is the envelope of every WebSocket text frame.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type ResultPayload = stream.Record

type ErrorPayload struct {
	Message string `json:"message"`
}
