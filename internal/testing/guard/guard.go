// Package guard switches the binaries into test mode. Blank-import it from
// tests of main packages so running them never dials Postgres or Redis.
package guard

import (
	"os"

	"github.com/assetdesk/assetdesk/internal/app"
)

func init() {
	if os.Getenv(app.TestModeEnv) == "" {
		_ = os.Setenv(app.TestModeEnv, "1")
	}
	app.RefreshTestMode()
}
