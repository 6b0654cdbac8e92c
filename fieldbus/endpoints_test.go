package fieldbus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

const directoryJSON = `{
	"fw_version": "0.5.6",
	"hw_version": "4.4.58",
	"endpoints": {
		"vbus_voltage": {"id": 1, "type": "float", "access": "r"},
		"axis0.requested_state": {"id": 10, "type": "uint8", "access": "rw"},
		"axis0.set_abs_pos": {"id": 14, "type": "function", "inputs": [{"name": "pos", "type": "float"}], "outputs": []}
	}
}`

func TestParseDirectory(t *testing.T) {
	dir, err := ParseDirectory(strings.NewReader(directoryJSON))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dir.FirmwareVersion, test.ShouldEqual, "0.5.6")
	test.That(t, dir.HardwareVersion, test.ShouldEqual, "4.4.58")

	ep, err := dir.Lookup("axis0.set_abs_pos")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ep.IsFunction(), test.ShouldBeTrue)
	test.That(t, ep.Inputs, test.ShouldHaveLength, 1)
	test.That(t, ep.Inputs[0].Type, test.ShouldEqual, TypeFloat)

	path, ok := dir.PathByID(10)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, path, test.ShouldEqual, "axis0.requested_state")
	test.That(t, dir.Has("vbus_voltage"), test.ShouldBeTrue)
	test.That(t, dir.Has("axis1.requested_state"), test.ShouldBeFalse)

	_, err = dir.Lookup("missing")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadDirectoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.json")
	test.That(t, os.WriteFile(path, []byte(directoryJSON), 0o600), test.ShouldBeNil)
	dir, err := ReadDirectory(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dir.Endpoints, test.ShouldHaveLength, 3)

	_, err = ReadDirectory(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDirectoryValidation(t *testing.T) {
	_, err := ParseDirectory(strings.NewReader(`{"endpoints": {}}`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDirectory("1.0.0", "1.0.0", map[string]Endpoint{
		"a": {ID: 1, Type: TypeFloat},
		"b": {ID: 1, Type: TypeUint8},
	})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "share id 1")

	_, err = NewDirectory("1.0.0", "1.0.0", map[string]Endpoint{"a": {ID: 1, Type: "double"}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestVersionStrings(t *testing.T) {
	v, err := ParseVersion("0.5.6", "4.4.58")
	test.That(t, err, test.ShouldBeNil)
	decoded, err := DecodeVersion(v.Encode())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded, test.ShouldResemble, v)
	test.That(t, decoded.Firmware(), test.ShouldEqual, "0.5.6")
	test.That(t, decoded.Hardware(), test.ShouldEqual, "4.4.58")

	_, err = ParseVersion("0.5", "4.4.58")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseVersion("0.5.6", "4.4.300")
	test.That(t, err, test.ShouldNotBeNil)
}
