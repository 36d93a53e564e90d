package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/tweetpan/internal/store"
)

// useConfigDir points the commands at dir for the duration of the test.
func useConfigDir(t *testing.T, dir string) {
	t.Helper()
	old := configDir
	t.Cleanup(func() { configDir = old })
	configDir = dir
}

// setRunFlags sets the run command flags and restores them afterwards.
func setRunFlags(t *testing.T, dryRun bool, topics []string, format string) {
	t.Helper()
	oldDry, oldTopics, oldFormat, oldEvery := runDryRun, runTopics, runFormat, runEvery
	t.Cleanup(func() {
		runDryRun, runTopics, runFormat, runEvery = oldDry, oldTopics, oldFormat, oldEvery
	})
	runDryRun, runTopics, runFormat, runEvery = dryRun, topics, format, ""
}

// writeTestConfig writes config.yaml into dir. extra is appended verbatim.
func writeTestConfig(t *testing.T, dir, feedTemplate, topics string) string {
	t.Helper()
	dbPath := filepath.Join(dir, "tweetpan.db")
	content := fmt.Sprintf(`
fetcher:
  kind: rss
  rss:
    url_template: %q
platform:
  profile_url: https://x.test/{user}
mail:
  from: digest@example.com
storage:
  path: %q
log:
  level: error
%s`, feedTemplate, dbPath, topics)

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return dbPath
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	done := make(chan []byte)
	go func() {
		out, _ := io.ReadAll(reader)
		done <- out
	}()

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out := <-done
	_ = reader.Close()
	return string(out), runErr
}

func openStoreForTest(t *testing.T, path string) *store.Store {
	t.Helper()

	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}

func requireNotContains(t *testing.T, got, unwanted string) {
	t.Helper()

	if strings.Contains(got, unwanted) {
		t.Fatalf("expected output not to contain %q, got:\n%s", unwanted, got)
	}
}
