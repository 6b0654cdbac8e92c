// Package register registers all relevant joint drivers.
package register

import (
	// register
	_ "github.com/scythe-robotics/armctl/components/motor/fake"
	_ "github.com/scythe-robotics/armctl/components/motor/gpiostepper"
	_ "github.com/scythe-robotics/armctl/components/motor/odrive"
)
