// Package cli contains the armctl command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	configFlag  = "config"
	debugFlag   = "debug"
	pitchFlag   = "pitch"
	yawFlag     = "yaw"
	speedFlag   = "speed"
	homeFlag    = "home"
	watchFlag   = "watch"
	logFlag     = "log-file"
	logSizeFlag = "log-max-size"
	minFwFlag   = "min-firmware"
)

var orientationFlags = []cli.Flag{
	&cli.Float64Flag{
		Name:  pitchFlag,
		Usage: "tool pitch in degrees, 0 points the tool straight down",
	},
	&cli.Float64Flag{
		Name:  yawFlag,
		Usage: "tool yaw in degrees about the vertical axis",
	},
}

// NewApp returns the armctl application writing its output to out and reading
// operator requests for the run command from in.
func NewApp(out io.Writer, in io.Reader) *cli.App {
	return &cli.App{
		Name:            "armctl",
		Usage:           "drive and inspect a five joint arm",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       out,
		Reader:          in,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    debugFlag,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  logFlag,
				Usage: "also write logs to `FILE`",
			},
			&cli.StringFlag{
				Name:  logSizeFlag,
				Value: "10MB",
				Usage: "rotate the log file once it reaches `SIZE`",
			},
		},
		// main owns the exit code; the default handler exits inside Run on a multierr.
		ExitErrHandler: func(*cli.Context, error) {},
		Before: func(c *cli.Context) error {
			_, err := logMaxSizeMB(c.String(logSizeFlag))
			return err
		},
		Commands: []*cli.Command{
			{
				Name:      "solve",
				Usage:     "solve the joint angles that reach a point",
				ArgsUsage: "<x> <y> <z>",
				Flags:     orientationFlags,
				Action:    SolveAction,
			},
			{
				Name:      "forward",
				Usage:     "compute where the tool is for a set of joint angles",
				ArgsUsage: "<base> <shoulder> <elbow> <wrist_yaw> <wrist_pitch>",
				Action:    ForwardAction,
			},
			{
				Name:  "check",
				Usage: "handshake with every servo node on the bus",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  minFwFlag,
						Usage: "also require node firmware to satisfy `CONSTRAINT`, e.g. \">= 0.5\"",
					},
				},
				Action: CheckAction,
			},
			{
				Name:      "move",
				Usage:     "enable the arm, move the tool to a point and wait for it",
				ArgsUsage: "<x> <y> <z>",
				Flags: append([]cli.Flag{
					&cli.Float64Flag{
						Name:  speedFlag,
						Value: 100,
						Usage: "speed in percent of each joint's configured maximum",
					},
					&cli.BoolFlag{
						Name:  homeFlag,
						Usage: "return every joint to zero afterwards",
					},
				}, orientationFlags...),
				Action: MoveAction,
			},
			{
				Name:   "position",
				Usage:  "print every joint and the estimated tool position",
				Action: PositionAction,
			},
			{
				Name:  "run",
				Usage: "run the control loop, reading JSON objects of requests from stdin",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  watchFlag,
						Usage: "apply keep_out changes made to the config file while running",
					},
				},
				Action: RunAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the config file",
				Action: SchemaAction,
			},
		},
	}
}
