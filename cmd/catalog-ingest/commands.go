package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/export"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/fetch"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/service"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/config"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/cron"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/storage"
)

// runFlags override the RUN_* environment for one invocation.
type runFlags struct {
	supplier    string
	name        string
	versionDate string
	signedURL   string
	sourcePath  string
	layouts     string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.supplier, "supplier", "", "supplier slug (SUPPLIER_SLUG)")
	cmd.Flags().StringVar(&f.name, "name", "", "supplier display name (SUPPLIER_NAME)")
	cmd.Flags().StringVar(&f.versionDate, "version", "", "catalogue version date YYYY-MM-DD (VERSION_DATE)")
	cmd.Flags().StringVar(&f.signedURL, "url", "", "signed URL to download the PDF from (SIGNED_URL)")
	cmd.Flags().StringVar(&f.sourcePath, "source", "", "storage key or path of the PDF (SOURCE_PATH)")
	cmd.Flags().StringVar(&f.layouts, "layouts", "", "JSON file with extra supplier layouts (LAYOUTS_FILE)")
}

// apply merges the flags into the environment configuration.
func (f *runFlags) apply(run *config.RunConfig) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&run.SupplierSlug, f.supplier)
	override(&run.SupplierName, f.name)
	override(&run.VersionDate, f.versionDate)
	override(&run.SignedURL, f.signedURL)
	override(&run.SourcePath, f.sourcePath)
	override(&run.LayoutsFile, f.layouts)
}

// buildRequest fetches from the signed URL when there is one, else from the
// source path. Rows record the source path, or the URL without its token.
func buildRequest(run config.RunConfig) service.Request {
	source := run.SignedURL
	if source == "" {
		source = run.SourcePath
	}
	return service.Request{
		Metadata: catalog.Metadata{
			SupplierSlug: run.SupplierSlug,
			SupplierName: run.SupplierName,
			VersionDate:  run.VersionDate,
			SourceURL:    recordedSource(run.SourcePath, run.SignedURL),
		},
		Source:  source,
		Replace: service.ReplaceMode(run.ReplaceMode),
	}
}

func recordedSource(sourcePath, signedURL string) string {
	if sourcePath != "" {
		return sourcePath
	}
	u, err := url.Parse(signedURL)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func newRunCmd(a *app) *cobra.Command {
	var flags runFlags
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest one price list into the catalogue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(&a.cfg.Run)
			if mode != "" {
				a.cfg.Run.ReplaceMode = mode
			}

			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.Close()

			report, err := deps.IngestService.Ingest(cmd.Context(), buildRequest(a.cfg.Run))
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", "", "replace or upsert (REPLACE_MODE)")
	return cmd
}

func printReport(w io.Writer, r *service.Report) {
	fmt.Fprintf(w, "run %s: %s %s (%s, %s)\n", r.RunID, r.Supplier, r.VersionDate, r.Mode, r.Replace)
	fmt.Fprintf(w, "  pages      %d (%d failed)\n", r.PagesProcessed, r.PagesFailed)
	fmt.Fprintf(w, "  rows       %d parsed, %d written, %d deleted, %d duplicates\n",
		r.RowsParsed, r.RowsUpserted, r.RowsDeleted, r.DuplicatesSkipped)
	fmt.Fprintf(w, "  batches    %d\n", r.Batches)
	if r.ArchiveKey != "" {
		fmt.Fprintf(w, "  archive    %s\n", r.ArchiveKey)
	}
	fmt.Fprintf(w, "  duration   %s\n", r.Duration.Round(time.Millisecond))
	for _, pe := range r.PageErrors {
		fmt.Fprintf(w, "  skipped    %s %v\n", pe.Mode, pe)
	}
}

func newParseCmd(a *app) *cobra.Command {
	var flags runFlags
	var out string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Extract rows without writing to the catalogue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(&a.cfg.Run)

			format := export.FormatNDJSON
			if out != "" && out != "-" {
				f, err := export.FormatFromPath(out)
				if err != nil {
					return err
				}
				format = f
			}

			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.Close()

			rows, res, err := deps.IngestService.Extract(cmd.Context(), buildRequest(a.cfg.Run))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := export.Write(w, format, rows); err != nil {
				return err
			}

			a.logger.Info("Parsed document",
				"mode", res.Mode,
				"rows", len(rows),
				"pages", res.Pages,
				"page_errors", res.PagesFailed(),
				"out", out,
			)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (.ndjson, .csv, .xlsx); stdout NDJSON when empty")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured ingestion on INGEST_CRON until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.Close()

			run := a.cfg.Run
			job := func(ctx context.Context, versionDate string) error {
				r := run
				if r.VersionDate == "" {
					r.VersionDate = versionDate
				}
				_, err := deps.IngestService.Ingest(ctx, buildRequest(r))
				return err
			}

			scheduler, err := cron.NewScheduler(a.cfg.Schedule.Cron, job, timeout, a.logger)
			if err != nil {
				return err
			}
			if err := scheduler.Start(); err != nil {
				return err
			}

			var metricsSrv *http.Server
			if addr := a.cfg.Observability.MetricsAddr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", deps.Metrics.Handler())
				metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", "error", err)
					}
				}()
				a.logger.Info("serving metrics", "addr", addr)
			}

			<-cmd.Context().Done()

			<-scheduler.Stop().Done()
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Hour, "maximum duration of one scheduled run")
	return cmd
}

func newLayoutsCmd(a *app) *cobra.Command {
	var layouts string

	cmd := &cobra.Command{
		Use:   "layouts",
		Short: "List the suppliers with a registered layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if layouts != "" {
				a.cfg.Run.LayoutsFile = layouts
			}
			deps := &Dependencies{Config: a.cfg, Logger: a.logger}
			if err := deps.initParsers(); err != nil {
				return err
			}
			for _, slug := range deps.Registry.Slugs() {
				fmt.Fprintln(cmd.OutOrStdout(), slug)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&layouts, "layouts", "", "JSON file with extra supplier layouts (LAYOUTS_FILE)")
	return cmd
}

func newSignCmd(a *app) *cobra.Command {
	var expires time.Duration

	cmd := &cobra.Command{
		Use:   "sign <key>",
		Short: "Print a time-limited download URL for a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := &Dependencies{Config: a.cfg, Logger: a.logger}
			if err := deps.initStorage(); err != nil {
				return err
			}
			signer, ok := deps.Objects.(storage.Signer)
			if !ok {
				return fmt.Errorf("%s storage cannot sign URLs", a.cfg.Storage.Type)
			}
			if expires == 0 {
				expires = a.cfg.Storage.SignExpiry
			}

			signed, err := signer.Sign(cmd.Context(), args[0], expires)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expires, "expires", 0, "validity of the URL (STORAGE_SIGN_EXPIRY)")
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	var key string
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a price-list PDF so later runs can use it as --source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(&a.cfg.Run)
			if key == "" {
				key = defaultSourceKey(a.cfg.Run, args[0])
			}
			if fetch.IsURL(key) {
				return fmt.Errorf("storage key must not be a URL: %s", key)
			}

			deps := &Dependencies{Config: a.cfg, Logger: a.logger}
			if err := deps.initStorage(); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			info, err := deps.Objects.Put(cmd.Context(), key, "application/pdf", f)
			if err != nil {
				return err
			}
			a.logger.Info("Uploaded document", "key", info.Key, "bytes", info.Size)
			fmt.Fprintln(cmd.OutOrStdout(), info.Key)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&key, "key", "", "storage key; defaults to pdf/{supplier}/{version}.pdf")
	return cmd
}

// defaultSourceKey files documents under the supplier and version when both
// are known, else under the file name.
func defaultSourceKey(run config.RunConfig, file string) string {
	if run.SupplierSlug != "" && run.VersionDate != "" {
		return path.Join("pdf", run.SupplierSlug, run.VersionDate+".pdf")
	}
	return path.Join("pdf", strings.ToLower(filepath.Base(file)))
}
