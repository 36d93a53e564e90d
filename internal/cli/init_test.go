package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/tweetpan/internal/config"
)

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tweetpan")
	useConfigDir(t, dir)

	out, err := captureStdout(t, func() error {
		return initAction(initCmd, nil)
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "Initialized "+dir+" with 2 config files.")

	info, err := os.Stat(filepath.Join(dir, config.DefaultEnvFile))
	if err != nil {
		t.Fatalf("stat .env: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf(".env mode = %o, want 600", perm)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load generated config: %v", err)
	}
	if len(cfg.Topics) != 1 || cfg.Topics[0].Name != "golang" {
		t.Errorf("topics = %+v, want the golang example", cfg.Topics)
	}
}

func TestInitKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)

	custom := []byte("# mine\n")
	path := filepath.Join(dir, config.DefaultConfigFile)
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, config.DefaultEnvFile), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := captureStdout(t, func() error {
		return initAction(initCmd, nil)
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "already initialized")

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(custom) {
		t.Errorf("config overwritten: %q", got)
	}
}
