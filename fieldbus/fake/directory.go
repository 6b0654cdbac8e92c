package fake

import (
	"github.com/scythe-robotics/armctl/fieldbus"
)

// Versions reported by the simulated servo directory.
const (
	FirmwareVersion = "0.5.6"
	HardwareVersion = "4.4.58"
)

// NewServoDirectory returns the subset of a servo controller's endpoint schema the arm uses.
func NewServoDirectory() *fieldbus.Directory {
	dir, err := fieldbus.NewDirectory(FirmwareVersion, HardwareVersion, map[string]fieldbus.Endpoint{
		"vbus_voltage":                          {ID: 1, Type: fieldbus.TypeFloat, Access: "r"},
		"clear_errors":                          {ID: 2, Type: fieldbus.TypeFunction},
		"axis0.requested_state":                 {ID: 10, Type: fieldbus.TypeUint8, Access: "rw"},
		"axis0.current_state":                   {ID: 11, Type: fieldbus.TypeUint8, Access: "r"},
		"axis0.active_errors":                   {ID: 12, Type: fieldbus.TypeUint32, Access: "r"},
		"axis0.pos_estimate":                    {ID: 13, Type: fieldbus.TypeFloat, Access: "r"},
		"axis0.set_abs_pos":                     {ID: 14, Type: fieldbus.TypeFunction, Inputs: []fieldbus.Argument{{Name: "pos", Type: fieldbus.TypeFloat}}},
		"axis0.controller.input_pos":            {ID: 20, Type: fieldbus.TypeFloat, Access: "rw"},
		"axis0.controller.trajectory_done":      {ID: 21, Type: fieldbus.TypeBool, Access: "r"},
		"axis0.controller.config.input_mode":    {ID: 22, Type: fieldbus.TypeUint8, Access: "rw"},
		"axis0.trap_traj.config.vel_limit":      {ID: 30, Type: fieldbus.TypeFloat, Access: "rw"},
		"axis0.trap_traj.config.accel_limit":    {ID: 31, Type: fieldbus.TypeFloat, Access: "rw"},
		"axis0.trap_traj.config.decel_limit":    {ID: 32, Type: fieldbus.TypeFloat, Access: "rw"},
	})
	if err != nil {
		panic(err)
	}
	return dir
}
