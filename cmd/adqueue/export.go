package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [build-id]",
	Short: "Export an archived build's configuration",
	Long: `Export reads the build archive directly, so the server does not need to
be running. Without a build id the latest build is exported.

With --out the resulting configuration files and a build summary are written
into that directory. Otherwise the summary is printed to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("format", "f", "json", "summary format: json or yaml")
	exportCmd.Flags().StringP("out", "o", "", "directory to write the configuration files into")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	formatStr, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatStr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Archive.Driver != "sqlite" {
		return errors.New("export needs a persistent archive: set archive.driver to sqlite")
	}

	ctx := cmd.Context()
	store, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	defer store.Close()

	var rec *archive.BuildRecord
	if len(args) == 1 {
		rec, err = store.Get(ctx, args[0])
	} else {
		rec, err = store.Latest(ctx)
	}
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.New("no builds archived yet")
	}

	now := time.Now()
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := export.WriteDir(out, rec, format, now); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "exported build %s to %s\n", rec.ID, out)
		return nil
	}
	return export.Write(os.Stdout, export.ExportBuild(rec, now), format)
}
