package main

import (
	"fmt"
	"os"

	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/monitor"
)

var log *logging.Logger

var version = "<not set>"

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: powerflow <monitor|read|snapshot> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "monitor":
		err = monitor.Run(args, version)
	case "read":
		err = monitor.RunRead(args, version)
	case "snapshot":
		err = monitor.RunSnapshot(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
