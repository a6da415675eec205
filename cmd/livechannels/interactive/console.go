// Package interactive provides the interactive command-line interface
// for the livechannels client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/connection"
	"github.com/verdict-app/livechannels/pkg/subscription"
	"github.com/verdict-app/livechannels/pkg/transport"
)

// Coordinator is the part of subscription.Coordinator the console uses.
type Coordinator interface {
	AddInterest(key channel.Key, d channel.Descriptor)
	RemoveInterest(key channel.Key)
	Snapshot() []subscription.Interest
	Pending() int
}

// Link is the part of transport.Client the console uses.
type Link interface {
	IsConnected() bool
	ConnectionID() string
	State() connection.State
	On(event string, h transport.Handler) (remove func())
}

// Console handles interactive mode for livechannels.
type Console struct {
	coord Coordinator
	link  Link
	out   io.Writer
	rl    *readline.Instance

	mu      sync.Mutex
	watches map[string]func()
}

// New creates a console reading commands from the terminal.
func New(coord Coordinator, link Link) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "live> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsole(coord, link, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(coord Coordinator, link Link, out io.Writer) *Console {
	return &Console{
		coord:   coord,
		link:    link,
		out:     out,
		watches: make(map[string]func()),
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the user quits.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "post", "chat", "list":
		c.cmdAdd(cmd, args)

	case "drop", "d":
		c.cmdDrop(args)

	case "watch", "w":
		c.cmdWatch(args)

	case "unwatch":
		c.cmdUnwatch(args)

	case "status", "s":
		c.cmdStatus()

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Live Channel Commands:
  Interests:
    post <uuid>              - Follow updates of a post
    chat <id>                - Follow a chat room
    list <POPULAR|VOTED>     - Follow a curated list
    drop <key>               - Release one interest (e.g. chat_42)

  Events:
    watch <event>            - Print inbound events with this name
    unwatch <event>          - Stop printing them

  Other:
    status                   - Show link state and active channels
    help                     - Show this help
    quit                     - Exit`)
}

func (c *Console) cmdAdd(kind string, args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Usage: %s <value>\n", kind)
		return
	}

	d, err := parseDescriptor(kind, args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := d.Validate(); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	key := d.Key()
	c.coord.AddInterest(key, d)
	if c.link.IsConnected() {
		fmt.Fprintf(c.out, "Following %s\n", key)
	} else {
		fmt.Fprintf(c.out, "Following %s (queued until connected)\n", key)
	}
}

func (c *Console) cmdDrop(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: drop <key>")
		return
	}

	key, err := channel.ParseKey(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.coord.RemoveInterest(key)
	fmt.Fprintf(c.out, "Released %s\n", key)
}

func (c *Console) cmdWatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: watch <event>")
		return
	}
	event := args[0]

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watches[event]; ok {
		fmt.Fprintf(c.out, "Already watching %s\n", event)
		return
	}
	c.watches[event] = c.link.On(event, func(payload []byte) {
		fmt.Fprintf(c.out, "[EVENT] %s (%d bytes)\n", event, len(payload))
	})
	fmt.Fprintf(c.out, "Watching %s\n", event)
}

func (c *Console) cmdUnwatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: unwatch <event>")
		return
	}
	event := args[0]

	c.mu.Lock()
	remove, ok := c.watches[event]
	delete(c.watches, event)
	c.mu.Unlock()

	if !ok {
		fmt.Fprintf(c.out, "Not watching %s\n", event)
		return
	}
	remove()
	fmt.Fprintf(c.out, "Stopped watching %s\n", event)
}

func (c *Console) cmdStatus() {
	fmt.Fprintf(c.out, "Link:      %s\n", c.link.State())
	if id := c.link.ConnectionID(); id != "" {
		fmt.Fprintf(c.out, "Conn ID:   %s\n", id)
	}
	fmt.Fprintf(c.out, "Pending:   %d\n", c.coord.Pending())

	interests := c.coord.Snapshot()
	if len(interests) == 0 {
		fmt.Fprintln(c.out, "Channels:  none")
		return
	}
	fmt.Fprintln(c.out, "Channels:")
	for _, in := range interests {
		fmt.Fprintf(c.out, "  %-40s %d\n", in.Key, in.Count)
	}
}

// parseDescriptor builds a descriptor from a command name and argument.
func parseDescriptor(kind, arg string) (channel.Descriptor, error) {
	switch kind {
	case "post":
		return channel.PostUpdates(arg), nil
	case "chat":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return channel.Descriptor{}, fmt.Errorf("invalid chat room id %q", arg)
		}
		return channel.ChatRoomUpdates(id), nil
	case "list":
		t, err := channel.ParseCuratedListType(strings.ToUpper(arg))
		if err != nil {
			return channel.Descriptor{}, err
		}
		return channel.CuratedListUpdates(t), nil
	default:
		return channel.Descriptor{}, fmt.Errorf("unknown channel kind %q", kind)
	}
}
