// Package protocol defines the control frame exchanged on the discovery port.
//
// A frame is four colon-separated ASCII fields:
//
//	COMMAND:TARGET:SENDER:PARAM
//
// TARGET is either Broadcast or an exact host name. The delimiter is not
// escaped: a PARAM containing ':' yields a frame every peer drops as malformed.
package protocol

// Command identifies a control frame.
type Command string

// Command constants.
const (
	CmdHello        Command = "HELLO"         // announce presence, expect WELCOME
	CmdWelcome      Command = "WELCOME"       // reply to HELLO
	CmdBye          Command = "BYE"           // leaving the network
	CmdRing         Command = "RING"          // call request
	CmdCallAccepted Command = "CALL_ACCEPTED" // callee picked up
	CmdEndCall      Command = "END_CALL"      // hang up or reject
	CmdText         Command = "TEXT"          // PARAM is the message text
	CmdFile         Command = "FILE"          // PARAM is the offered file name
	CmdFileAccepted Command = "FILE_ACCEPTED" // PARAM is the accepted file name
)

// Broadcast is the TARGET value addressing every listening peer.
const Broadcast = "ALL"

// Delimiter separates the four frame fields.
const Delimiter = ":"

// fieldCount is the exact number of fields in a well-formed frame.
const fieldCount = 4

// Frame is one control message.
type Frame struct {
	Command Command
	Target  string // Broadcast or a host name
	Sender  string // host name of the originator
	Param   string // command-specific, may be empty
}

// IsBroadcast reports whether the frame is addressed to every peer.
func (f *Frame) IsBroadcast() bool {
	return f.Target == Broadcast
}

// Known reports whether c is one of the commands above.
func (c Command) Known() bool {
	switch c {
	case CmdHello, CmdWelcome, CmdBye, CmdRing, CmdCallAccepted,
		CmdEndCall, CmdText, CmdFile, CmdFileAccepted:
		return true
	}
	return false
}
