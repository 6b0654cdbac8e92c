// Package genericlinux implements a GPIO board for Linux single board computers using periph.io.
package genericlinux

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/scythe-robotics/armctl/components/board"
	"github.com/scythe-robotics/armctl/logging"
)

var (
	initOnce sync.Once
	errInit  error
)

// Board hands out periph.io GPIO lines by name.
type Board struct {
	mu     sync.Mutex
	pins   map[string]*periphGpioPin
	logger logging.Logger
}

// NewBoard initializes the host drivers once per process and returns a board.
func NewBoard(logger logging.Logger) (*Board, error) {
	initOnce.Do(func() {
		_, errInit = host.Init()
	})
	if errInit != nil {
		return nil, errors.Wrap(errInit, "cannot initialize GPIO host drivers")
	}
	return &Board{pins: map[string]*periphGpioPin{}, logger: logger}, nil
}

// GPIOPinByName looks up a line by the name periph.io knows it by.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pins[name]; ok {
		return p, nil
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no global pin found for %q", name)
	}
	p := &periphGpioPin{pin: pin, name: name}
	b.pins[name] = p
	b.logger.Debugw("opened gpio", "pin", name)
	return p, nil
}

// Close drives every pin handed out low.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs error
	for name, p := range b.pins {
		if err := p.pin.Out(gpio.Low); err != nil {
			errs = errors.Wrapf(err, "cannot reset pin %q", name)
		}
	}
	return errs
}

type periphGpioPin struct {
	pin  gpio.PinIO
	name string
}

func (gp *periphGpioPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	l := gpio.Low
	if high {
		l = gpio.High
	}
	return gp.pin.Out(l)
}

func (gp *periphGpioPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return gp.pin.Read() == gpio.High, nil
}
