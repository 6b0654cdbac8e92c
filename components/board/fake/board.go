// Package fake implements a fake board that records every pin transition.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/scythe-robotics/armctl/components/board"
)

// Board is a fake board whose pins are created on first use.
type Board struct {
	mu     sync.Mutex
	gpios  map[string]*GPIOPin
	closed bool
}

// NewBoard returns an empty fake board.
func NewBoard() *Board {
	return &Board{gpios: map[string]*GPIOPin{}}
}

// GPIOPinByName returns the GPIO pin by the given name.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	return b.Pin(name)
}

// Pin is GPIOPinByName returning the concrete fake pin.
func (b *Board) Pin(name string) (*GPIOPin, error) {
	if name == "" {
		return nil, errors.New("pin name must not be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("board is closed")
	}
	p, ok := b.gpios[name]
	if !ok {
		p = &GPIOPin{}
		b.gpios[name] = p
	}
	return p, nil
}

// Close marks the board closed.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// GPIOPin is a fake pin that counts its transitions.
type GPIOPin struct {
	mu      sync.Mutex
	high    bool
	sets    int
	rising  int
	failErr error
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	if gp.failErr != nil {
		return gp.failErr
	}
	if high && !gp.high {
		gp.rising++
	}
	gp.high = high
	gp.sets++
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.high, nil
}

// High reports the current level.
func (gp *GPIOPin) High() bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.high
}

// RisingEdges counts low to high transitions, which for a step pin is the pulse count.
func (gp *GPIOPin) RisingEdges() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.rising
}

// Sets counts calls to Set.
func (gp *GPIOPin) Sets() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.sets
}

// FailWith makes every later Set return err. A nil err clears the failure.
func (gp *GPIOPin) FailWith(err error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.failErr = err
}
