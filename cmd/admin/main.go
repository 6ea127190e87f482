package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/slothauth/internal/admin"
	"github.com/dmitrijs2005/slothauth/internal/logging"
	"github.com/dmitrijs2005/slothauth/internal/server"
	"github.com/dmitrijs2005/slothauth/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	core, err := server.NewCore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app := admin.NewApp(core.Accounts, os.Stdin, os.Stdout, logger)
	runErr := app.Run(ctx, admin.CommandArgs(os.Args[1:]))

	if err := core.Close(); err != nil {
		log.Printf("%v", err)
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}

}
