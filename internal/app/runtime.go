package app

import (
	"os"
	"sync"
)

// TestModeEnv, when set to "1", makes the binaries return before opening any
// connection. The testing package sets it for test binaries.
const TestModeEnv = "MEMOPSY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the process runs under test mode. The variable is
// read once.
func InTestMode() bool {
	return testMode()
}
