package app

import "testing"

func TestRefreshTestModeFollowsEnvironment(t *testing.T) {
	t.Cleanup(RefreshTestMode)

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	if InTestMode() {
		t.Fatalf("expected test mode off with %s=0", testModeEnv)
	}

	t.Setenv(testModeEnv, "1")
	if InTestMode() {
		t.Fatalf("flag should stay cached until refreshed")
	}
	RefreshTestMode()
	if !InTestMode() {
		t.Fatalf("expected test mode on after refresh")
	}
}
