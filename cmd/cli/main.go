package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"imvqa/adapters/sqlstore"
	"imvqa/app"
	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/internal/config"
	"imvqa/internal/container"
	"imvqa/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env is fine; the environment still applies
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// inputs are the flags shared by every command that analyzes a plate
type inputs struct {
	layout  string
	qa      string
	feature string
}

func (in *inputs) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.layout, "layout", "", "Assay layout file (.xlsx or .csv)")
	cmd.Flags().StringVar(&in.qa, "qa", "", "Per-field QA export (.xlsx or .csv)")
	cmd.Flags().StringVarP(&in.feature, "feature", "f", "", "Feature column to analyze")
	cmd.MarkFlagRequired("layout")
	cmd.MarkFlagRequired("qa")
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imvqa",
		Short:         "IMV QA well statistics from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newWellCmd(),
		newSaveCmd(),
		newQueryCmd(),
		newExportCmd(),
		newGenerateCmd(),
	)
	return rootCmd
}

// session builds a container and opens the input files as one session
func session(ctx context.Context, in inputs) (*container.Container, core.SessionID, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	c, err := container.New(cfg)
	if err != nil {
		return nil, "", err
	}
	return openInputs(ctx, c, in)
}

func openInputs(ctx context.Context, c *container.Container, in inputs) (*container.Container, core.SessionID, error) {
	if c.Service == nil {
		c.BuildService()
	}
	layout, err := os.Open(in.layout)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open layout: %w", err)
	}
	defer layout.Close()
	qa, err := os.Open(in.qa)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open QA data: %w", err)
	}
	defer qa.Close()

	info, err := c.Service.OpenSession(ctx,
		app.Upload{Name: filepath.Base(in.layout), Reader: layout},
		app.Upload{Name: filepath.Base(in.qa), Reader: qa},
	)
	if err != nil {
		return nil, "", err
	}
	return c, info.ID, nil
}

// pickFeature defaults to the first numeric feature of the session
func pickFeature(c *container.Container, id core.SessionID, feature string) (string, error) {
	if feature != "" {
		return feature, nil
	}
	features, err := c.Service.Features(id)
	if err != nil {
		return "", err
	}
	if len(features) == 0 {
		return "", fmt.Errorf("QA data has no numeric feature columns")
	}
	return features[0], nil
}

func newAnalyzeCmd() *cobra.Command {
	var in inputs
	var format string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print the median and variation of every layout well",
		Long: `Load an assay layout and a per-field QA export, then print the per-well
median and variation of one feature against the control wells.

Example: imvqa analyze --layout layout.xlsx --qa qa.csv -f Intensity --format table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, id, err := session(cmd.Context(), in)
			if err != nil {
				return err
			}
			feature, err := pickFeature(c, id, in.feature)
			if err != nil {
				return err
			}
			return runAnalyze(cmd.OutOrStdout(), c.Service, id, feature, format)
		},
	}

	in.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json|md")
	return cmd
}

func runAnalyze(out io.Writer, svc *app.AnalysisService, id core.SessionID, feature, format string) error {
	switch format {
	case "md":
		res, err := svc.Report(id, feature, nil)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, res.Markdown)
		return err
	case "json", "table":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	medians, err := svc.Heatmap(id, feature)
	if err != nil {
		return err
	}
	variations, err := svc.VariationTable(id, feature)
	if err != nil {
		return err
	}

	if format == "json" {
		type row struct {
			Row       int      `json:"row"`
			Column    int      `json:"column"`
			Median    *float64 `json:"median"`
			Variation *float64 `json:"variation"`
		}
		rows := make([]row, 0, len(medians.Rows))
		for i, m := range medians.Rows {
			rows = append(rows, row{Row: m.Row, Column: m.Column,
				Median: finite(m.Median), Variation: finite(variations.Table.Rows[i].Variation)})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"feature":        feature,
			"control_median": finite(variations.Table.ControlMedian),
			"warning":        variations.Warning,
			"wells":          rows,
		})
	}

	fmt.Fprintf(out, "Feature: %s\n", feature)
	fmt.Fprintf(out, "Control median: %s\n", formatValue(variations.Table.ControlMedian))
	if variations.Warning != "" {
		fmt.Fprintf(out, "Warning: %s\n", variations.Warning)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Row\tColumn\tMedian\tVariation\t")
	for i, m := range medians.Rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t\n", m.Row, m.Column,
			formatValue(m.Median), formatValue(variations.Table.Rows[i].Variation))
	}
	return tw.Flush()
}

func newWellCmd() *cobra.Command {
	var in inputs

	cmd := &cobra.Command{
		Use:   "well [row] [column]",
		Short: "Inspect one well: compound, median and variation",
		Long: `Show the compound, feature median, control median and variation of one well.

Example: imvqa well 2 4 --layout layout.xlsx --qa qa.csv -f Intensity`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid row %q: %w", args[0], err)
			}
			column, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid column %q: %w", args[1], err)
			}
			c, id, err := session(cmd.Context(), in)
			if err != nil {
				return err
			}
			feature, err := pickFeature(c, id, in.feature)
			if err != nil {
				return err
			}
			return runWell(cmd.OutOrStdout(), c.Service, id, feature, plate.NewWell(row, column))
		},
	}

	in.bind(cmd)
	return cmd
}

func runWell(out io.Writer, svc *app.AnalysisService, id core.SessionID, feature string, well plate.Well) error {
	rep, err := svc.InspectWell(id, feature, well)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Well %s: %s\n", rep.Well, rep.Compound)
	fmt.Fprintf(out, "%s median: %s\n", feature, formatValue(rep.Median))
	fmt.Fprintf(out, "Control median: %s\n", formatValue(rep.ControlMedian))
	if rep.Message != "" {
		fmt.Fprintf(out, "Variation: %s\n", rep.Message)
		return nil
	}
	fmt.Fprintf(out, "Variation: %s\n", formatValue(rep.Variation))
	return nil
}

// storeContainer opens the configured database on top of a plain container
func storeContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	c.BuildService()
	return c, nil
}

func newSaveCmd() *cobra.Command {
	var in inputs

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save field records with their well variation to the database",
		Long: `Join every field record with the variation of its well and replace the
stored data and assay tables. Undefined variations are stored as NULL.

Example: DATABASE_URL=imv_qa.db imvqa save --layout layout.xlsx --qa qa.csv -f Intensity`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := storeContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			_, id, err := openInputs(ctx, c, in)
			if err != nil {
				return err
			}
			feature, err := pickFeature(c, id, in.feature)
			if err != nil {
				return err
			}
			rec, err := c.Service.Save(ctx, id, feature)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved analysis %s: %d field records, %d wells\n",
				rec.ID, rec.RecordCount, rec.WellCount)
			return nil
		},
	}

	in.bind(cmd)
	return cmd
}

func newQueryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [threshold]",
		Short: "List saved field records with variation above a threshold",
		Long: `Query the saved data for field records whose variation is strictly greater
than the threshold. Records with an undefined variation never match.

Example: imvqa query 2.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid threshold %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			c, err := storeContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			records, err := c.Service.AboveThreshold(ctx, threshold)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func printRecords(out io.Writer, records []plate.DataRecord, asJSON bool) error {
	if asJSON {
		type record struct {
			Row       int                 `json:"row"`
			Column    int                 `json:"column"`
			Field     int                 `json:"field"`
			Features  map[string]*float64 `json:"features"`
			Variation *float64            `json:"variation"`
		}
		rows := make([]record, 0, len(records))
		for _, r := range records {
			features := make(map[string]*float64, len(r.Features))
			for k, v := range r.Features {
				features[k] = finite(v)
			}
			rows = append(rows, record{Row: r.Row, Column: r.Column, Field: r.Field,
				Features: features, Variation: finite(r.Variation)})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No field records above threshold")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Row\tColumn\tField\tVariation\t")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t\n", r.Row, r.Column, r.Field, formatValue(r.Variation))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d field records\n", len(records))
	return nil
}

func newExportCmd() *cobra.Command {
	var in inputs
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the median, variation and assay tables as a workbook",
		Long: `Write an XLSX workbook with Median, Variation and Assay sheets. With --out
the workbook is written to a local file, otherwise to the configured blob
store (BLOB_DRIVER=fs|s3).

Example: imvqa export --layout layout.xlsx --qa qa.csv -f Intensity --out intensity.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			if outPath == "" {
				if err := c.InitBlobStore(ctx); err != nil {
					return err
				}
			}
			_, id, err := openInputs(ctx, c, in)
			if err != nil {
				return err
			}
			feature, err := pickFeature(c, id, in.feature)
			if err != nil {
				return err
			}

			if outPath != "" {
				return writeWorkbookFile(c, id, feature, outPath)
			}
			info, err := c.Service.Export(ctx, id, feature)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s (%d bytes) to %s\n", info.Key, info.Size, info.URL)
			return nil
		},
	}

	in.bind(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the workbook to this local file")
	return cmd
}

func writeWorkbookFile(c *container.Container, id core.SessionID, feature, path string) error {
	wb, err := c.Service.Workbook(id, feature)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := c.Writer.WriteWorkbook(f, wb); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newGenerateCmd() *cobra.Command {
	gen := testkit.DefaultPlateConfig()
	var outDir string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic layout and QA export for demos and tests",
		Long: `Generate a synthetic plate: a layout with control wells in the first and last
columns, and a per-field QA export in which one compound stands out.

Example: imvqa generate --out-dir ./demo --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.OutOrStdout(), gen, outDir)
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory for layout.csv and qa.csv")
	cmd.Flags().Int64Var(&gen.Seed, "seed", gen.Seed, "Random seed for deterministic output")
	cmd.Flags().IntVar(&gen.Rows, "rows", gen.Rows, "Plate rows")
	cmd.Flags().IntVar(&gen.Columns, "columns", gen.Columns, "Plate columns")
	cmd.Flags().IntVar(&gen.Fields, "fields", gen.Fields, "Imaged fields per well")
	cmd.Flags().Float64Var(&gen.HitEffect, "hit-effect", gen.HitEffect, "Multiplier applied to the hit compound")
	cmd.Flags().Float64Var(&gen.MissingRate, "missing-rate", gen.MissingRate, "Fraction of missing measurements")
	return cmd
}

func runGenerate(out io.Writer, cfg testkit.PlateGeneratorConfig, outDir string) error {
	layout, data, err := testkit.NewPlateDataGenerator(cfg).Generate()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	cols := plate.DefaultColumns()
	layoutPath := filepath.Join(outDir, "layout.csv")
	if err := writeFile(layoutPath, func(w io.Writer) error { return testkit.WriteLayoutCSV(w, layout, cols) }); err != nil {
		return err
	}
	qaPath := filepath.Join(outDir, "qa.csv")
	if err := writeFile(qaPath, func(w io.Writer) error { return testkit.WriteQACSV(w, data, cols) }); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s (%d wells) and %s (%d field records)\n", layoutPath, layout.Len(), qaPath, data.Len())
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
