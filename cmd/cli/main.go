package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"trialrand/adapters/export"
	"trialrand/domain/randomisation"
	"trialrand/internal/config"
	"trialrand/internal/container"
	"trialrand/internal/dataset"
	"trialrand/internal/migration"
	"trialrand/internal/report"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	rootCmd := &cobra.Command{
		Use:   "trialrand",
		Short: "Stratified permuted-block randomisation schedules",
	}

	rootCmd.AddCommand(
		newGenerateCmd(),
		newVerifyCmd(),
		newAuditCmd(),
		newJoinCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newContainer loads configuration and wires the service. Persistence is
// only enabled when store is set and DATABASE_URL is configured.
func newContainer(ctx context.Context, store bool, parallel bool) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !store {
		cfg.Database.URL = ""
	}
	if parallel {
		cfg.Randomisation.ParallelStrata = true
	}
	return container.New(ctx, cfg)
}

func newGenerateCmd() *cobra.Command {
	var planPath, outDir, format string
	var parallel, store bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a schedule from a plan and export it",
		Long: `Generate a combined schedule from a YAML or JSON plan and write the rows
together with a manifest sidecar that allows the run to be replayed.

Example: trialrand generate --plan hospitals.yaml --out ./schedules --format both`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			plan, err := config.LoadPlan(planPath)
			if err != nil {
				return err
			}

			c, err := newContainer(ctx, store, parallel)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			if outDir == "" {
				outDir = c.Config.Output.Dir
			}
			if format == "" {
				format = c.Config.Output.Format
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			result, err := c.ScheduleService.Generate(ctx, plan)
			if err != nil {
				return err
			}
			files, err := export.WriteBundle(outDir, f, result.Schedule.Rows, result.Manifest)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s: %d rows in %d strata\n", result.Manifest.RunID, result.Manifest.TotalRows, len(result.Manifest.Strata))
			fmt.Printf("Fingerprint: %s\n", result.Manifest.Fingerprint)
			for _, file := range files {
				fmt.Printf("  wrote %s\n", file)
			}
			if !result.Audit.Balanced() {
				return fmt.Errorf("%d blocks failed the balance check", len(result.Audit.Violations))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Path to the randomisation plan (YAML or JSON)")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default OUTPUT_DIR)")
	cmd.Flags().StringVar(&format, "format", "", "Export format: csv, xlsx or both (default OUTPUT_FORMAT)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Generate strata concurrently")
	cmd.Flags().BoolVar(&store, "store", false, "Store the run in the configured database")
	cmd.MarkFlagRequired("plan")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	var manifestPath, schedulePath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay a manifest and check it reproduces the recorded schedule",
		Long: `Regenerate the schedule recorded by a manifest and compare fingerprints.
With --schedule the exported CSV or XLSX file is also compared row by row.

Example: trialrand verify --manifest ./schedules/<run>.manifest.json --schedule ./schedules/<run>.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(manifestPath)
			if err != nil {
				return fmt.Errorf("failed to open manifest: %w", err)
			}
			manifest, err := export.ReadManifest(f)
			f.Close()
			if err != nil {
				return err
			}

			c, err := newContainer(ctx, false, false)
			if err != nil {
				return err
			}
			combined, err := c.ScheduleService.Verify(ctx, manifest)
			if err != nil {
				return err
			}

			if schedulePath != "" {
				rows, err := readSchedule(schedulePath)
				if err != nil {
					return err
				}
				if err := compareRows(combined.Rows, rows); err != nil {
					return fmt.Errorf("%s: %w", schedulePath, err)
				}
				fmt.Printf("%s matches the regenerated schedule\n", schedulePath)
			}

			fmt.Printf("Run %s reproduces fingerprint %s\n", manifest.RunID, manifest.Fingerprint)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to the manifest sidecar")
	cmd.Flags().StringVar(&schedulePath, "schedule", "", "Exported schedule (CSV or XLSX) to compare")
	cmd.MarkFlagRequired("manifest")

	return cmd
}

func newAuditCmd() *cobra.Command {
	var planPath, htmlPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Generate a plan without exporting it and report its balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			plan, err := config.LoadPlan(planPath)
			if err != nil {
				return err
			}
			c, err := newContainer(ctx, false, false)
			if err != nil {
				return err
			}
			result, err := c.ScheduleService.Generate(ctx, plan)
			if err != nil {
				return err
			}

			if htmlPath != "" {
				if err := os.WriteFile(htmlPath, report.HTML(result.Manifest, result.Audit), 0o644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
				fmt.Printf("Report written to %s\n", htmlPath)
				return nil
			}
			fmt.Print(report.Markdown(result.Manifest, result.Audit))
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Path to the randomisation plan (YAML or JSON)")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Write the report as an HTML page instead of markdown")
	cmd.MarkFlagRequired("plan")

	return cmd
}

func newJoinCmd() *cobra.Command {
	var keys []string
	var how, outPath, leftSheet, rightSheet string

	cmd := &cobra.Command{
		Use:   "join [left] [right]",
		Short: "Join two CSV or XLSX tables on key columns",
		Long: `Join two tables exported from the trial database. The default is a full
outer join: unmatched rows from either side are kept with null cells.

Example: trialrand join sites.csv visits.xlsx --key site_id --key event --out analysis.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jt, err := dataset.ParseJoinType(how)
			if err != nil {
				return err
			}
			left, err := readTable(args[0], leftSheet)
			if err != nil {
				return err
			}
			right, err := readTable(args[1], rightSheet)
			if err != nil {
				return err
			}

			joined, err := dataset.Join(left, right, keys, jt)
			if err != nil {
				return err
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}
			if err := joined.WriteCSV(out); err != nil {
				return err
			}
			if outPath != "" {
				fmt.Printf("%d rows written to %s\n", len(joined.Rows), outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&keys, "key", nil, "Key column (repeat for composite keys)")
	cmd.Flags().StringVar(&how, "how", string(dataset.OuterJoin), "Join type: inner, left or outer")
	cmd.Flags().StringVar(&outPath, "out", "", "Output CSV path (default stdout)")
	cmd.Flags().StringVar(&leftSheet, "left-sheet", "", "Sheet of an XLSX left table (default first)")
	cmd.Flags().StringVar(&rightSheet, "right-sheet", "", "Sheet of an XLSX right table (default first)")
	cmd.MarkFlagRequired("key")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := container.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Printf("Schema at version %s\n", migration.NewRunner().Version())
			return nil
		},
	}
}

func readSchedule(path string) ([]randomisation.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return export.ReadXLSX(f)
	}
	return export.ReadCSV(f)
}

// readTable names each table after its file so colliding columns get
// readable prefixes.
func readTable(path, sheet string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return dataset.ReadXLSX(name, f, sheet)
	}
	return dataset.ReadCSV(name, f)
}

// compareRows checks an exported file against regenerated rows. Exports do
// not carry the global position, so rows are compared in file order.
func compareRows(want, got []randomisation.Row) error {
	if len(want) != len(got) {
		return fmt.Errorf("expected %d rows, file has %d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.ID != g.ID || w.Stratum != g.Stratum || w.Block != g.Block ||
			w.BlockPosition != g.BlockPosition || w.BlockLength != g.BlockLength || w.Treatment != g.Treatment {
			return fmt.Errorf("row %d differs: expected %s %s, got %s %s", i+1, w.ID, w.Treatment, g.ID, g.Treatment)
		}
	}
	return nil
}
