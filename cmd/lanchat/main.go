// LanChat — CLI entry point.
//
// A serverless LAN messenger: peers find each other by UDP broadcast, then
// chat, call and exchange files directly. Every process on the subnet is an
// equal peer.
//
// Flags (--config, --host-name, --iface, --control, --control-token,
// --downloads, --debug) override values from the optional YAML config file.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/lanchat/internal/app"
	"github.com/1ureka/lanchat/internal/config"
	"github.com/1ureka/lanchat/internal/engine"
	"github.com/1ureka/lanchat/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.DefaultHeader.WithFullWidth().Println(fmt.Sprintf("LanChat — v%s", version))
	pterm.Println()

	node, err := app.Start(ctx, cfg, printEvent)
	if err != nil {
		util.LogError("failed to join LAN: %v", err)
		os.Exit(1)
	}
	defer node.Close()

	util.LogSuccess("online as %s (%s)", node.Identity.HostName, node.Identity.LocalIP)
	pterm.Println(app.Usage)
	pterm.Println()

	runConsole(ctx, node)

	util.LogInfo("bye")
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// loadConfig layers defaults, the config file and flags, in that order.
func loadConfig() (config.Config, error) {
	configPath := pflag.String("config", "", "YAML config file")
	hostName := pflag.String("host-name", "", "name announced to peers (default: OS host name)")
	iface := pflag.String("iface", "", "network interface to use (default: first usable IPv4)")
	controlAddr := pflag.String("control", "", "WebSocket control address, e.g. 127.0.0.1:7070 (default: disabled)")
	controlToken := pflag.String("control-token", "", "token control clients must present (default: random, printed at startup)")
	downloads := pflag.String("downloads", "", "directory for received files (default: Downloads)")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return cfg, err
		}
	}

	flags := pflag.CommandLine
	if flags.Changed("host-name") {
		cfg.HostName = *hostName
	}
	if flags.Changed("iface") {
		cfg.Interface = *iface
	}
	if flags.Changed("control") {
		cfg.ControlAddr = *controlAddr
	}
	if flags.Changed("control-token") {
		cfg.ControlToken = *controlToken
	}
	if flags.Changed("downloads") {
		cfg.DownloadDir = *downloads
	}
	if flags.Changed("debug") {
		cfg.Debug = *debug
	}

	return cfg, cfg.Validate()
}

// ---------------------------------------------------------------------------
// Console
// ---------------------------------------------------------------------------

// runConsole reads commands from stdin until quit, EOF or ctx is cancelled.
func runConsole(ctx context.Context, node *app.Node) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-node.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			peers, err := app.Exec(ctx, node.Engine, line)
			switch {
			case errors.Is(err, app.ErrQuit):
				return
			case err != nil:
				util.LogWarning("%v", err)
			case peers != nil:
				printPeers(peers)
			}
		}
	}
}

func printPeers(peers []engine.Peer) {
	if len(peers) == 0 {
		pterm.Info.Println("no peers online")
		return
	}
	data := pterm.TableData{{"Host", "IP", "Call"}}
	for _, p := range peers {
		data = append(data, []string{p.HostName, p.IP, p.State.String()})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// printEvent renders engine events for the console user. It runs on the
// engine's dispatch goroutine.
func printEvent(ev engine.Event) {
	switch e := ev.(type) {
	case engine.PeerAdded:
		pterm.Info.Printfln("%s joined (%s)", e.Peer.HostName, e.Peer.IP)
	case engine.PeerRemoved:
		pterm.Info.Printfln("%s left", e.HostName)
	case engine.IncomingCall:
		pterm.Warning.Printfln("%s is calling: type 'accept' or 'hangup'", e.HostName)
	case engine.CallAccepted:
		pterm.Success.Printfln("%s picked up", e.HostName)
	case engine.EndCallRequested:
		pterm.Info.Printfln("call with %s ended", e.HostName)
	case engine.TextMessageArrived:
		pterm.Printfln("%s %s", pterm.Cyan("["+e.HostName+"]"), e.Text)
	case engine.FileSendRequested:
		pterm.Warning.Printfln("%s offers %s: type 'get %s %s'", e.HostName, e.FileName, e.HostName, e.FileName)
	case engine.FileSent:
		pterm.Success.Printfln("sent %s to %s (%s)", e.FileName, e.HostName, humanize.IBytes(uint64(e.Bytes)))
	case engine.ReceiveCompleted:
		pterm.Success.Printfln("saved %s from %s to %s (%s)", e.FileName, e.HostName, e.Path, humanize.IBytes(uint64(e.Bytes)))
	case engine.TransferFailed:
		pterm.Error.Printfln("transfer of %s with %s failed: %s", e.FileName, e.HostName, e.Reason)
	}
}
