//go:build integration

// Tests against a real legendary binary. They need no network access or
// account. Run with: go test -tags=integration ./internal/legendary/...
package legendary

import (
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/MythicApp/Mythic-sub001/internal/process"
	"github.com/MythicApp/Mythic-sub001/internal/registry"
)

// requireLegendary skips the test if the tool is not available.
func requireLegendary(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("LEGENDARY_PATH"); p != "" {
		return p
	}
	p, err := exec.LookPath("legendary")
	if err != nil {
		t.Skip("legendary not found in PATH and LEGENDARY_PATH not set - skipping integration test")
	}
	return p
}

func newIntegrationClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Path:        requireLegendary(t),
		ConfigDir:   t.TempDir(),
		InheritEnv:  true,
		LockTimeout: 10 * time.Second,
		Runner:      process.NewRunner(testLogger(), process.DefaultStopPolicy()),
		Registry:    registry.New(testLogger(), registry.Callbacks{}),
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestIntegration_Version(t *testing.T) {
	c := newIntegrationClient(t)
	res, err := c.Run(t.Context(), Invocation{Args: []string{"--version"}})
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.Contains(res.Stdout+res.Stderr, "version") {
		t.Errorf("unexpected version output: %q", res.Stdout)
	}
}

func TestIntegration_StatusSignedOut(t *testing.T) {
	c := newIntegrationClient(t)
	s, err := c.Status(t.Context())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if s.GamesInstalled != 0 {
		t.Errorf("fresh config dir reports %d installed games", s.GamesInstalled)
	}
	if c.State().SignedIn() {
		t.Error("fresh config dir should be signed out")
	}
}

func TestIntegration_UninstallUnknownGameFails(t *testing.T) {
	c := newIntegrationClient(t)
	err := c.Uninstall(t.Context(), UninstallOptions{Game: "NotARealGame"})
	if err == nil {
		t.Fatal("expected failure for a game that is not installed")
	}
	if n := c.Registry().Len(); n != 0 {
		t.Errorf("registry holds %d commands after exit", n)
	}
}
