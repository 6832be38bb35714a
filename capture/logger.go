package capture

import (
	"log/slog"

	"github.com/vitalscope/vitalscope"
)

// logger returns the module-wide logger configured via vitalscope.SetLogger.
func logger() *slog.Logger { return vitalscope.Logger() }
