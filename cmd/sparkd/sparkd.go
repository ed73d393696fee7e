package main

import (
	"fmt"
	"os"

	"github.com/kiosk404/spark/internal/sparkd"
)

func main() {
	if err := sparkd.NewCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
