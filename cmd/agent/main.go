// Package main is the entry point for the SQL memory agent.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	app := NewApp()

	if err := app.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
