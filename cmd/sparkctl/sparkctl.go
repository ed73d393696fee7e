package main

import (
	"os"

	"github.com/kiosk404/spark/internal/sparkctl/cmd"
)

func main() {
	command := cmd.NewDefaultSparkCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
