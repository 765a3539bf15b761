package cli

import (
	"os"

	"github.com/google/uuid"

	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/logging"
)

// initHookLogging opens the per-session log file before a hook/finalize
// command runs and returns a cleanup func to defer. Failure to resolve a
// session ID or open the log file is never fatal to the caller; logging
// falls back to stderr inside logging.Init itself.
func initHookLogging() func() {
	sessionID := os.Getenv("WHOGITIT_SESSION_ID")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	level := "info"
	if cfg, err := config.Load(); err == nil {
		level = cfg.General.LogLevel
	}
	if envLevel := os.Getenv(logging.LogLevelEnvVar); envLevel != "" {
		level = envLevel
	}

	if err := logging.Init(sessionID, level); err != nil {
		return func() {}
	}
	return logging.Close
}
