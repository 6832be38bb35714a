package gpu

import (
	"log/slog"

	"github.com/vitalscope/vitalscope"
)

// slogger returns the module-wide logger configured via vitalscope.SetLogger.
// All logging in gpu goes through this function.
func slogger() *slog.Logger { return vitalscope.Logger() }
