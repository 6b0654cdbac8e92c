// Package main is the armctl command itself.
package main

import (
	"fmt"
	"os"

	"github.com/scythe-robotics/armctl/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stdin)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
