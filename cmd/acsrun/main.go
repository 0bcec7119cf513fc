package main

import (
	"fmt"
	"os"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/app"
)

func main() {
	application := app.New(os.Stdin, os.Stdout, os.Stderr)
	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
