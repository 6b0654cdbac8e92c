// Package board defines the GPIO boards the open-loop stepper axes are wired to.
package board

import "context"

// A GPIOPin represents an individual GPIO pin on a board.
type GPIOPin interface {
	// Set sets the pin to either low or high.
	Set(ctx context.Context, high bool, extra map[string]interface{}) error

	// Get gets the high/low state of the pin.
	Get(ctx context.Context, extra map[string]interface{}) (bool, error)
}

// A Board hands out GPIO pins by name. Pin names are board specific, usually the
// header pin number or the kernel line name.
type Board interface {
	GPIOPinByName(name string) (GPIOPin, error)
	Close(ctx context.Context) error
}
