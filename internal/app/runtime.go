package app

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const testModeEnv = "VAULT_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the VAULT_TEST_MODE flag once.
func detectTestMode() {
	v := strings.TrimSpace(os.Getenv(testModeEnv))
	testModeFlag.Store(v == "1" || strings.EqualFold(v, "true"))
}

// InTestMode reports whether binaries should skip connecting to postgres,
// redis and the network listener.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}
