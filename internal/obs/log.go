package obs

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the JSON logger shared across the service.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
