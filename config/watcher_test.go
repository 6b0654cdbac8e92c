package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.viam.com/test"

	"github.com/scythe-robotics/armctl/logging"
)

func TestFSWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "arm.json")
	initial := strings.Replace(sampleConfig, "${ARM_CAN}", "fake", 1)
	test.That(t, os.WriteFile(path, []byte(initial), 0o600), test.ShouldBeNil)

	w, err := NewFSWatcher(path, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	// an invalid config is skipped
	test.That(t, os.WriteFile(path, []byte("{"), 0o600), test.ShouldBeNil)
	updated := strings.Replace(initial, `"keep_out": ["-100 -100 0 100 100 50"]`,
		`"keep_out": ["-100 -100 0 100 100 50", "200 200 0 300 300 100"]`, 1)
	test.That(t, os.WriteFile(path, []byte(updated), 0o600), test.ShouldBeNil)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-w.Config():
			if len(cfg.KeepOut) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("no config change seen")
		}
	}
}

func TestFSWatcherMissingDir(t *testing.T) {
	_, err := NewFSWatcher(filepath.Join(t.TempDir(), "nope", "arm.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFSWatcherCloseStopsWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := filepath.Join(t.TempDir(), "arm.json")
	test.That(t, os.WriteFile(path, []byte("{}"), 0o600), test.ShouldBeNil)

	w, err := NewFSWatcher(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w.Close(), test.ShouldBeNil)
}
