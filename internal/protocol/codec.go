package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame is returned by Decode for payloads that do not split into
// exactly four fields.
var ErrMalformedFrame = errors.New("malformed frame")

// Encode serializes a Frame for a single UDP datagram.
func Encode(f *Frame) []byte {
	return []byte(string(f.Command) + Delimiter + f.Target + Delimiter + f.Sender + Delimiter + f.Param)
}

// Decode parses a datagram payload into a Frame.
func Decode(data []byte) (*Frame, error) {
	parts := strings.Split(string(data), Delimiter)
	if len(parts) != fieldCount {
		return nil, fmt.Errorf("%w: %d fields (need %d)", ErrMalformedFrame, len(parts), fieldCount)
	}
	return &Frame{
		Command: Command(parts[0]),
		Target:  parts[1],
		Sender:  parts[2],
		Param:   parts[3],
	}, nil
}
