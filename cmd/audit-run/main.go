// Command audit-run performs a single reconciliation run against the
// configured record store and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/medrex/clinic-audit/internal/app"
	"github.com/medrex/clinic-audit/pkg/config"
	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

func main() {
	inicio := flag.String("inicio", "", "start of the date window (YYYY-MM-DD or DD/MM/YYYY)")
	fim := flag.String("fim", "", "end of the date window (YYYY-MM-DD or DD/MM/YYYY)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel)
	// stdout carries the JSON result
	log.SetOutput(os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.WithError(err).Error("Failed to initialize")
		os.Exit(2)
	}
	defer application.Close()

	var window *types.DateWindow
	if *inicio != "" || *fim != "" {
		window = &types.DateWindow{Inicio: *inicio, Fim: *fim}
	}

	result, runErr := application.Audit.RunAudit(context.Background(), window)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.WithError(err).Error("Failed to encode result")
	}

	if runErr != nil {
		log.WithError(runErr).Error("Audit run failed")
		application.Close()
		os.Exit(1)
	}
}
