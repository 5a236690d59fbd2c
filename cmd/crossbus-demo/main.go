// Command crossbus-demo wires two in-process busses over the loopback
// transport and drives a couple of request/signal exchanges between them,
// printing colored trace output.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/crossbus-io/crossbus/pkg/crossbus/bus"
	"github.com/crossbus-io/crossbus/pkg/crossbus/emitter"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handler"
)

var (
	app = kingpin.New("crossbus-demo", "Wires two CrossBus nodes over a loopback transport and exchanges messages.")

	echoCmd     = app.Command("echo", "Send a request from node a to node b and print the response.").Default()
	echoMessage = echoCmd.Arg("message", "payload to echo").Default("hello from a").String()
	echoTimeout = echoCmd.Flag("timeout", "request timeout").Default("2s").Duration()

	broadcastCmd  = app.Command("broadcast", "Broadcast a signal from node a and show node b receiving it.")
	broadcastName = broadcastCmd.Arg("name", "signal name").Default("demo:ping").String()
)

type printer func(w io.Writer, format string, a ...interface{})

func main() {
	out := colorable.NewColorableStdout()
	info := printer(color.New(color.FgCyan).FprintfFunc())
	ok := printer(color.New(color.FgGreen, color.Bold).FprintfFunc())
	fail := printer(color.New(color.FgRed, color.Bold).FprintfFunc())

	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case echoCmd.FullCommand():
		runEcho(out, info, ok, fail, *echoMessage, *echoTimeout)
	case broadcastCmd.FullCommand():
		runBroadcast(out, info, ok, fail, *broadcastName)
	}
}

func mustBus(out io.Writer, fail printer, peerID string, isHub bool) *bus.Bus {
	b, err := bus.New(bus.Options{PeerID: peerID, IsHub: isHub})
	if err != nil {
		fail(out, "failed to construct bus %s: %v\n", peerID, err)
		os.Exit(1)
	}
	return b
}

func runEcho(out io.Writer, info, ok, fail printer, message string, timeout time.Duration) {
	a := mustBus(out, fail, "node-a", false)
	b := mustBus(out, fail, "node-b", true)
	defer a.Destroy()
	defer b.Destroy()

	if err := b.Handle("echo", func(ctx context.Context, from string, data interface{}) (interface{}, error) {
		return fmt.Sprintf("%v (echoed by %s)", data, "node-b"), nil
	}, handler.Options{}); err != nil {
		fail(out, "node-b: failed to register handler: %v\n", err)
		os.Exit(1)
	}

	if err := a.ConnectLoopback(b, map[string]interface{}{"demo": true}); err != nil {
		fail(out, "failed to connect node-a and node-b: %v\n", err)
		os.Exit(1)
	}

	info(out, "node-a requesting %q from node-b...\n", "echo")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	result, err := a.Request(ctx, "node-b", "echo", message, bus.RequestOptions{Timeout: timeout})
	if err != nil {
		fail(out, "request failed: %v\n", err)
		os.Exit(1)
	}
	ok(out, "node-b responded: %v\n", result)
}

func runBroadcast(out io.Writer, info, ok, fail printer, name string) {
	a := mustBus(out, fail, "node-a", false)
	b := mustBus(out, fail, "node-b", true)
	defer a.Destroy()
	defer b.Destroy()

	received := make(chan interface{}, 1)
	b.On(name, func(data interface{}, source string) {
		received <- data
	}, emitter.Options{})

	if err := a.ConnectLoopback(b, nil); err != nil {
		fail(out, "failed to connect: %v\n", err)
		os.Exit(1)
	}

	info(out, "node-a broadcasting %q...\n", name)
	if err := a.Signal(name, map[string]interface{}{"at": time.Now().Format(time.RFC3339)}, ""); err != nil {
		fail(out, "signal failed: %v\n", err)
		os.Exit(1)
	}

	select {
	case data := <-received:
		ok(out, "node-b received %q: %v\n", name, data)
	case <-time.After(2 * time.Second):
		info(out, "node-b never received the broadcast\n")
	}
}
