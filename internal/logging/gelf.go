package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFHandler ships JSON-encoded records to a Graylog GELF UDP input.
// The returned closer releases the UDP socket.
func NewGELFHandler(addr string, level slog.Leveler) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("creating gelf writer for %s: %w", addr, err)
	}
	w.Facility = ServiceName

	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), w, nil
}
