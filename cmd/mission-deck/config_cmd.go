package main

import (
	"fmt"
	"os"

	"github.com/asheshgoplani/mission-deck/internal/config"
)

func handleConfig(args []string) {
	if len(args) > 0 && args[0] == "init" {
		initConfigFile()
		return
	}

	path, err := config.Path()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config file: %s\n", path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		fmt.Println("(not created yet; run 'mission-deck config init')")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	fmt.Println()
	os.Stdout.Write(data)
}

func initConfigFile() {
	path, err := config.Path()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists\n", path)
		os.Exit(1)
	}
	if err := config.CreateExampleConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}
