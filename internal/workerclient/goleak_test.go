package workerclient

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against leaked renewal-loop goroutines: every test that
// starts a task must stop it (directly or via Server.StopAll) before
// returning, exactly as a real worker must on shutdown (spec.md §4.4
// step 4).
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
