// Command storectl is a back-office client for the storefront REST API.
//
//	storectl [-config path] [-v] <command> [args]
//
// Commands: login, logout, logout-all, whoami, get, post, put, patch, delete.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errReported) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "storectl:", err)
		}
		os.Exit(1)
	}
}
