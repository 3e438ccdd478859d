// Leap bridge node daemon.
//
// Usage:
//
//	leapd [--testnet --operator-key=...] Run node
//	leapd --help                          Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/internal/node"
)

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		config.PrintUsage(os.Stderr)
		os.Exit(2)
	}
	switch {
	case flags.Help:
		config.PrintUsage(os.Stdout)
		return
	case flags.Version:
		fmt.Printf("leapd %s\n", config.Version)
		return
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}
