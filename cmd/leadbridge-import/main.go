package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"leadbridge/internal/config"
	"leadbridge/internal/database"
	"leadbridge/internal/importer"
	"leadbridge/internal/store"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "validate the file without writing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-dry-run] users.xlsx\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), flag.Arg(0), *dryRun, logger); err != nil {
		var rowErrs importer.RowErrors
		if errors.As(err, &rowErrs) {
			for _, re := range rowErrs {
				logger.Error("invalid row", "line", re.Line, "field", re.Field, "error", re.Msg)
			}
			logger.Error("nothing imported", "invalid_rows", len(rowErrs))
		} else {
			logger.Error("import failed", "error", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, dryRun bool, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := importer.Parse(f)
	if err != nil {
		return err
	}
	logger.Info("workbook loaded", "file", path, "rows", len(rows), "dry_run", dryRun)

	cfg := config.LoadConfig()
	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		return err
	}

	res, err := importer.New(store.New(db), logger).Run(ctx, rows, dryRun)
	if err != nil {
		return err
	}
	logger.Info("done", "rows", res.Rows, "created", res.Created, "updated", res.Updated, "offices", res.Offices, "dry_run", res.DryRun)
	return nil
}
