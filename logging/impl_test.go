package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestSubloggerNaming(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	arm := logger.Sublogger("arm")
	base := arm.Sublogger("base")

	base.Infow("moving", "target", 12.5)
	test.That(t, observed.Len(), test.ShouldEqual, 1)
	entry := observed.All()[0]
	test.That(t, entry.LoggerName, test.ShouldEqual, "arm.base")
	test.That(t, entry.Message, test.ShouldEqual, "moving")
	test.That(t, entry.ContextMap()["target"], test.ShouldEqual, 12.5)
}

func TestLevelFiltering(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.SetLevel(WARN)
	logger.Debug("dropped")
	logger.Infof("dropped %d", 1)
	logger.Warn("kept")
	logger.Errorf("kept %d", 2)
	test.That(t, observed.Len(), test.ShouldEqual, 2)
	test.That(t, observed.All()[1].Message, test.ShouldEqual, "kept 2")
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
}

func TestUnpairedKey(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Warnw("odd", "lonely")
	test.That(t, observed.Len(), test.ShouldEqual, 1)
	_, ok := observed.All()[0].ContextMap()["lonely"]
	test.That(t, ok, test.ShouldBeTrue)
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	test.That(t, level.String(), test.ShouldEqual, "Warn")

	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armctl.log")
	appender := NewFileAppender(path, 1)
	logger := NewBlankLogger("arm")
	logger.AddAppender(appender)

	logger.Infow("state change", "to", "idle")
	logger.Debug("polling")
	test.That(t, appender.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	test.That(t, lines, test.ShouldHaveLength, 2)
	test.That(t, lines[0], test.ShouldContainSubstring, "INFO\tarm")
	test.That(t, lines[0], test.ShouldContainSubstring, `{"to":"idle"}`)
	test.That(t, lines[1], test.ShouldContainSubstring, "polling")
}
