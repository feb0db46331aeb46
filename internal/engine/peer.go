package engine

import "fmt"

// CallState is the per-peer call state. At most one peer is outside Idle.
type CallState int

const (
	Idle       CallState = iota
	RingOut              // we dialed, waiting for CALL_ACCEPTED
	RingIn               // they dialed, waiting for the local user
	InProgress           // media is flowing
)

func (s CallState) String() string {
	switch s {
	case Idle:
		return "idle"
	case RingOut:
		return "ring-out"
	case RingIn:
		return "ring-in"
	case InProgress:
		return "in-progress"
	}
	return fmt.Sprintf("CallState(%d)", int(s))
}

// MarshalText renders the state by name in JSON.
func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Peer is one entry of the peer directory, keyed by HostName.
type Peer struct {
	HostName string    `json:"host"`
	IP       string    `json:"ip"`
	State    CallState `json:"state"`
}

// FileRequest is a pending outbound transfer, waiting for FILE_ACCEPTED.
type FileRequest struct {
	HostName   string
	FileName   string
	SourcePath string
}
