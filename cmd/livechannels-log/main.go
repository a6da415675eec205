// Command livechannels-log views and summarizes protocol capture files.
//
// Capture files are written by livechannels with the -log-file flag.
//
// Usage:
//
//	livechannels-log <command> [flags] <file.clog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file as JSON lines
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View only coordinator decisions
//	livechannels-log view -layer coordinator client.clog
//
//	# Everything that happened to one channel
//	livechannels-log view -key chat_42 client.clog
//
//	# Keep only subscribes of one connection
//	livechannels-log filter -category subscribe -conn-id <uuid> -o sub.clog client.clog
//
//	# Show statistics
//	livechannels-log stats client.clog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/verdict-app/livechannels/cmd/livechannels-log/commands"
	"github.com/verdict-app/livechannels/pkg/log"
)

const usage = `livechannels-log - Live Channel Capture Analyzer

Usage:
  livechannels-log <command> [flags] <file.clog>

Commands:
  view     View capture file in human-readable format
  export   Export capture file as JSON lines
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "livechannels-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags holds the filter flags shared by view and filter.
type filterFlags struct {
	layer     *string
	direction *string
	category  *string
	key       *string
	connID    *string
	start     *string
	end       *string
}

func addFilterFlags(fs *flag.FlagSet) filterFlags {
	return filterFlags{
		layer:     fs.String("layer", "", "Filter by layer (transport, coordinator)"),
		direction: fs.String("direction", "", "Filter by direction (in, out)"),
		category:  fs.String("category", "", "Filter by category (frame, subscribe, unsubscribe, defer, replay, state, error)"),
		key:       fs.String("key", "", "Filter by resource key (e.g. chat_42)"),
		connID:    fs.String("conn-id", "", "Filter by full connection ID"),
		start:     fs.String("start", "", "Events at or after this RFC3339 time"),
		end:       fs.String("end", "", "Events before this RFC3339 time"),
	}
}

func (f filterFlags) build() (log.Filter, error) {
	filter := log.Filter{Key: *f.key, ConnectionID: *f.connID}

	if *f.layer != "" {
		l, err := commands.ParseLayerFlag(*f.layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if *f.direction != "" {
		d, err := commands.ParseDirectionFlag(*f.direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if *f.category != "" {
		c, err := log.ParseCategory(*f.category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}

	var err error
	if filter.TimeStart, err = commands.ParseTimeFlag(*f.start); err != nil {
		return filter, err
	}
	if filter.TimeEnd, err = commands.ParseTimeFlag(*f.end); err != nil {
		return filter, err
	}
	return filter, nil
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `livechannels-log %s - %s

Usage:
  livechannels-log %s [flags] <file.clog>

Flags:
`, name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// parsePath parses args and returns the capture file argument.
func parsePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture file in human-readable format")
	flags := addFilterFlags(fs)
	path := parsePath(fs, args)

	filter, err := flags.build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture file as JSON lines")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parsePath(fs, args)

	if err := commands.RunExport(path, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	flags := addFilterFlags(fs)
	path := parsePath(fs, args)

	filter, err := flags.build()
	if err != nil {
		fail(err)
	}
	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		fail(err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture file")
	path := parsePath(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
