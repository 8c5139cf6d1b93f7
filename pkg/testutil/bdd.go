package testutil

import "testing"

// Given, When and Then nest subtests so scenario names read as sentences in
// `go test -v` output, e.g. "Given_a_closed_container/When_it_departs/Then_...".
func Given(t *testing.T, situation string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Given "+situation, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("When "+action, fn)
}

func Then(t *testing.T, outcome string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Then "+outcome, fn)
}
