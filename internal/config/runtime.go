package config

import (
	"os"
	"sync/atomic"
)

// Process-wide settings that come from flags rather than storefront.yaml.
var (
	debugMode atomic.Bool
	operator  atomic.Pointer[string]
)

// SetDebug turns verbose logging on for every package that checks IsDebug.
func SetDebug(on bool) { debugMode.Store(on) }

func IsDebug() bool { return debugMode.Load() }

// SetOperator records who is editing, for UpdatedBy and publish
// notifications. An empty name falls back to $USER.
func SetOperator(name string) {
	if name == "" {
		name = os.Getenv("USER")
	}
	operator.Store(&name)
}

// GetOperator returns the editing identity, or "" if none was set.
func GetOperator() string {
	if p := operator.Load(); p != nil {
		return *p
	}
	return ""
}
