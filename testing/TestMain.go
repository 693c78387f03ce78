package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/app"
)

var once sync.Once

// ensureTestMode stops the binaries from dialing Postgres and Redis when a
// test imports them.
func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(app.TestModeEnv, "1")
		if os.Getenv("EVIDENCE_DIR") == "" {
			_ = os.Setenv("EVIDENCE_DIR", os.TempDir())
		}
		app.RefreshTestMode()
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
