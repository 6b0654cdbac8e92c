package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

const fakeJointsConfig = `{
	"joints": [
		{"name": "base", "type": "fake"},
		{"name": "shoulder", "type": "fake"},
		{"name": "elbow", "type": "fake"},
		{"name": "wrist_yaw", "type": "fake"},
		{"name": "wrist_pitch", "type": "fake"}
	],
	"keep_out": ["400 -100 0 600 100 200"],
	"refresh_rate_hz": 200
}`

const fakeBusConfig = `{
	"bus": {"interface": "fake"},
	"joints": [
		{"name": "base", "type": "odrive", "attributes": {"node_id": 4}},
		{"name": "shoulder", "type": "odrive", "attributes": {"node_id": 5}},
		{"name": "elbow", "type": "fake"},
		{"name": "wrist_yaw", "type": "fake"},
		{"name": "wrist_pitch", "type": "fake"}
	]
}`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arm.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(&out, strings.NewReader(stdin))
	err := app.Run(append([]string{"armctl"}, args...))
	return out.String(), err
}

func TestSolve(t *testing.T) {
	out, err := run(t, "", "solve", "--pitch", "30", "--yaw", "45", "300", "300", "200")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrist_pitch")
	test.That(t, out, test.ShouldContainSubstring, "tool at (")

	_, err = run(t, "", "solve", "300", "300")
	test.That(t, err, test.ShouldNotBeNil)

	out, err = run(t, "", "solve", "5000", "0", "0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, out, test.ShouldContainSubstring, "rejected")

	out, err = run(t, "", "--config", writeConfig(t, fakeJointsConfig), "solve", "500", "0", "100")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, out, test.ShouldContainSubstring, "keep-out")
}

func TestForward(t *testing.T) {
	out, err := run(t, "", "forward", "0", "0", "0", "0", "0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "1185")

	_, err = run(t, "", "forward", "0", "0", "x", "0", "0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "elbow")
}

func TestCheck(t *testing.T) {
	_, err := run(t, "", "check")
	test.That(t, err, test.ShouldNotBeNil)

	out, err := run(t, "", "--config", writeConfig(t, fakeBusConfig), "check")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "0.5.6")
	test.That(t, strings.Count(out, "ok"), test.ShouldEqual, 2)

	out, err = run(t, "", "--config", writeConfig(t, fakeBusConfig), "check", "--min-firmware", ">= 0.5")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Count(out, "ok"), test.ShouldEqual, 2)

	out, err = run(t, "", "--config", writeConfig(t, fakeBusConfig), "check", "--min-firmware", ">= 0.6")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, out, test.ShouldContainSubstring, "does not satisfy")
	// both nodes fail, and the combined error comes back instead of exiting
	test.That(t, err.Error(), test.ShouldContainSubstring, "node 4")
	test.That(t, err.Error(), test.ShouldContainSubstring, "node 5")

	_, err = run(t, "", "--config", writeConfig(t, fakeBusConfig), "check", "--min-firmware", "newest")
	test.That(t, err, test.ShouldNotBeNil)

	out, err = run(t, "", "--config", writeConfig(t, fakeJointsConfig), "check")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "no servo joints")
}

func TestMoveAndPosition(t *testing.T) {
	cfg := writeConfig(t, fakeJointsConfig)
	out, err := run(t, "", "--config", cfg, "move", "--speed", "50", "300", "300", "200")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "arrived")

	out, err = run(t, "", "--config", cfg, "move", "500", "0", "100")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, out, test.ShouldContainSubstring, "move failed")

	_, err = run(t, "", "--config", cfg, "move", "--speed", "0", "300", "300", "200")
	test.That(t, err, test.ShouldNotBeNil)

	out, err = run(t, "", "--config", cfg, "position")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrist_yaw")
	test.That(t, out, test.ShouldContainSubstring, "1185.000)")
}

func TestRun(t *testing.T) {
	cfg := writeConfig(t, fakeJointsConfig)
	stdin := `{"setup": true, "enable_motors": true, "target_position": [300, 300, 200], "request_move": true}
{"shutdown": true}`
	out, err := run(t, stdin, "--config", cfg, "run")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "stopped with arm disabled")
}

func TestSchema(t *testing.T) {
	out, err := run(t, "", "schema")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "keep_out")
	test.That(t, out, test.ShouldContainSubstring, "refresh_rate_hz")
}

func TestLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "armctl.log")
	_, err := run(t, "", "--debug", "--log-file", logPath, "--config", writeConfig(t, fakeJointsConfig), "position")
	test.That(t, err, test.ShouldBeNil)
	contents, err := os.ReadFile(logPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "read config")

	_, err = run(t, "", "--log-max-size", "12KB", "--log-file", logPath, "position")
	test.That(t, err, test.ShouldNotBeNil)
}
