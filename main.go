package main

import (
	"fmt"
	"os"

	"github.com/deskmate-app/deskmate/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
