// Package guard switches binaries into test mode when imported from a test,
// so calling main() does not dial postgres or redis.
package guard

import (
	"os"
	"sync"
)

// EnvVar is read by app.InTestMode.
const EnvVar = "VAULT_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
