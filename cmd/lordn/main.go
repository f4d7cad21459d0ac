// Command lordn drains LORDN queues into MarksDB uploads and manages the
// queue and verify task backends.
//
// Settings come from flags, LORDN_* environment variables, an optional .env
// file in the working directory and an optional YAML file passed via --config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := submain(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
