// Command rollcall is a terminal client for the rollcall API.
package main

import (
	"log"
	"os"
	"time"

	"rollcall/internal/apiclient"
	"rollcall/internal/config"
	"rollcall/internal/reconcile"
)

func main() {
	cfg := config.LoadClient()
	logger := log.New(os.Stderr, "rollcall: ", 0)

	cli := commandLine{
		api:   apiclient.New(cfg.APIBase, cfg.Token, cfg.Timeout),
		out:   os.Stdout,
		clock: reconcile.SystemClock(time.Local),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("error: %s", err)
		}
		os.Exit(1)
	}
}
