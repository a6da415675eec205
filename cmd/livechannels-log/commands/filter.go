package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/verdict-app/livechannels/pkg/log"
)

// RunFilter copies the events matching filter into a new capture file and
// returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	if output == "" {
		return 0, errors.New("output file required")
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	written := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.Close()
			return written, fmt.Errorf("failed to read event: %w", err)
		}
		out.Log(event)
		written++
	}
	return written, out.Close()
}
