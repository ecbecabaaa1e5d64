// Command co2sim-import copies formation meshes from CSV exports into the
// SQLite store used by co2simd when formations.source is sqlite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/storage"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
)

func main() {
	var dir string
	var dbPath string
	var logLevel string

	flag.StringVar(&dir, "dir", "data/formations", "directory holding one subdirectory of CSV files per formation")
	flag.StringVar(&dbPath, "db", "co2sim.db", "SQLite database path")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] formation...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.SetDefault(logger.NewText(logLevel, os.Stderr))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	failed := false
	for _, name := range flag.Args() {
		start := time.Now()
		f, err := formation.LoadCSV(dir, name)
		if err != nil {
			logger.Error("failed to read formation", "name", name, "error", err)
			failed = true
			continue
		}
		if err := db.ImportFormation(ctx, f); err != nil {
			logger.Error("failed to import formation", "name", name, "error", err)
			failed = true
			continue
		}
		logger.Info("formation imported",
			"name", f.Name,
			"cells", humanize.Comma(int64(f.CellCount())),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}

	infos, err := db.ListFormations(ctx)
	if err != nil {
		logger.Error("failed to list formations", "error", err)
		os.Exit(1)
	}
	for _, info := range infos {
		fmt.Printf("%-20s %12s cells  imported %s\n", info.Name, humanize.Comma(int64(info.Cells)), humanize.Time(info.ImportedAt))
	}
	if failed {
		os.Exit(1)
	}
}
