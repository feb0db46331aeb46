package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/1ureka/lanchat/internal/control"
	"github.com/1ureka/lanchat/internal/engine"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("quit")

// Usage lists the console commands.
const Usage = `commands:
  peers                 list peers
  call <host>           ring a peer
  accept                pick up the ringing call
  hangup                end or reject the call
  msg <host> <text>     send a chat message
  send <host> <path>    offer a file
  get <host> <file>     accept an offered file
  quit                  leave the LAN`

// Exec runs one console line against eng. For "peers" it returns the
// directory snapshot; other commands return nil peers.
func Exec(ctx context.Context, eng control.Engine, line string) ([]engine.Peer, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		return nil, nil

	case "peers", "ls":
		return eng.Peers(ctx)

	case "call":
		host, err := oneArg(cmd, rest)
		if err != nil {
			return nil, err
		}
		return nil, eng.Call(ctx, host)

	case "accept":
		return nil, eng.Accept(ctx)

	case "hangup", "reject":
		return nil, eng.EndCall(ctx)

	case "msg":
		host, text, err := twoArgs(cmd, rest)
		if err != nil {
			return nil, err
		}
		return nil, eng.SendText(ctx, host, text)

	case "send":
		host, path, err := twoArgs(cmd, rest)
		if err != nil {
			return nil, err
		}
		return nil, eng.SendFile(ctx, host, path)

	case "get":
		host, name, err := twoArgs(cmd, rest)
		if err != nil {
			return nil, err
		}
		return nil, eng.AcceptFile(ctx, host, name)

	case "quit", "exit":
		return nil, ErrQuit
	}

	return nil, fmt.Errorf("unknown command %q", cmd)
}

func oneArg(cmd, rest string) (string, error) {
	if rest == "" || strings.ContainsAny(rest, " \t") {
		return "", fmt.Errorf("usage: %s <host>", cmd)
	}
	return rest, nil
}

// twoArgs splits "<host> <remainder>", keeping spaces in the remainder.
func twoArgs(cmd, rest string) (string, string, error) {
	host, tail, ok := strings.Cut(rest, " ")
	tail = strings.TrimSpace(tail)
	if !ok || host == "" || tail == "" {
		return "", "", fmt.Errorf("usage: %s <host> <argument>", cmd)
	}
	return host, tail, nil
}
