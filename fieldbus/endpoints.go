package fieldbus

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Argument is one input or output of an endpoint.
type Argument struct {
	Name string        `json:"name"`
	Type PrimitiveType `json:"type"`
}

// Endpoint describes one property or function of a node.
type Endpoint struct {
	ID      uint16        `json:"id"`
	Type    PrimitiveType `json:"type"`
	Access  string        `json:"access,omitempty"`
	Inputs  []Argument    `json:"inputs,omitempty"`
	Outputs []Argument    `json:"outputs,omitempty"`
}

// IsFunction reports whether the endpoint is callable rather than a property.
func (e Endpoint) IsFunction() bool {
	return e.Type == TypeFunction
}

// Directory is the endpoint schema of one firmware build.
type Directory struct {
	FirmwareVersion string              `json:"fw_version"`
	HardwareVersion string              `json:"hw_version"`
	Endpoints       map[string]Endpoint `json:"endpoints"`

	byID map[uint16]string
}

// NewDirectory builds a directory and its id index.
func NewDirectory(fwVersion, hwVersion string, endpoints map[string]Endpoint) (*Directory, error) {
	dir := &Directory{FirmwareVersion: fwVersion, HardwareVersion: hwVersion, Endpoints: endpoints}
	if err := dir.index(); err != nil {
		return nil, err
	}
	return dir, nil
}

// ReadDirectory loads a directory from a JSON file.
func ReadDirectory(path string) (*Directory, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open endpoint directory")
	}
	defer f.Close()
	return ParseDirectory(f)
}

// ParseDirectory decodes a directory from JSON.
func ParseDirectory(r io.Reader) (*Directory, error) {
	var dir Directory
	if err := json.NewDecoder(r).Decode(&dir); err != nil {
		return nil, errors.Wrap(err, "cannot decode endpoint directory")
	}
	if dir.FirmwareVersion == "" || dir.HardwareVersion == "" {
		return nil, errors.New("endpoint directory is missing fw_version or hw_version")
	}
	if err := dir.index(); err != nil {
		return nil, err
	}
	return &dir, nil
}

func (d *Directory) index() error {
	d.byID = make(map[uint16]string, len(d.Endpoints))
	for path, ep := range d.Endpoints {
		if _, err := ep.Type.Width(); err != nil && !ep.IsFunction() {
			return errors.Wrapf(err, "endpoint %q", path)
		}
		if len(ep.Inputs) > 1 {
			return errors.Errorf("endpoint %q takes %d inputs, at most 1 is supported", path, len(ep.Inputs))
		}
		if other, ok := d.byID[ep.ID]; ok {
			return errors.Errorf("endpoints %q and %q share id %d", other, path, ep.ID)
		}
		d.byID[ep.ID] = path
	}
	return nil
}

// Lookup finds an endpoint by dotted path.
func (d *Directory) Lookup(path string) (Endpoint, error) {
	ep, ok := d.Endpoints[path]
	if !ok {
		return Endpoint{}, errors.Errorf("unknown endpoint %q", path)
	}
	return ep, nil
}

// Has reports whether the directory defines path.
func (d *Directory) Has(path string) bool {
	_, ok := d.Endpoints[path]
	return ok
}

// PathByID finds the path of an endpoint id.
func (d *Directory) PathByID(id uint16) (string, bool) {
	path, ok := d.byID[id]
	return path, ok
}
