// Package control exposes the engine to local front-ends over WebSocket.
//
// A client sends intents as JSON objects and receives every engine event as
// it happens. Each intent gets exactly one reply, "ok" or "error", carrying
// the intent's type in "request".
package control

import "encoding/json"

// MessageType identifies an intent sent by a client.
type MessageType string

const (
	MsgCall       MessageType = "call"
	MsgAccept     MessageType = "accept"
	MsgHangUp     MessageType = "hangup"
	MsgText       MessageType = "text"
	MsgSendFile   MessageType = "send_file"
	MsgAcceptFile MessageType = "accept_file"
	MsgPeers      MessageType = "peers"
)

// Message is the JSON structure a client sends.
type Message struct {
	Type MessageType `json:"type"`
	Host string      `json:"host,omitempty"`
	Text string      `json:"text,omitempty"`
	Path string      `json:"path,omitempty"` // local path for send_file
	File string      `json:"file,omitempty"` // offered file name for accept_file
}

// Reply types sent by the server besides event kinds.
const (
	replyOK    = "ok"
	replyError = "error"
)

// Envelope is the JSON structure the server sends: an event, or a reply to
// an intent.
type Envelope struct {
	Type    string          `json:"type"`
	Request MessageType     `json:"request,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}
