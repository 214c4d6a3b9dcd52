package config

import (
	"strings"

	"github.com/labstack/gommon/log"
)

// ParseLogLevel maps debug, info, warn, error and off to gommon levels.
// Anything else is INFO.
func ParseLogLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}
