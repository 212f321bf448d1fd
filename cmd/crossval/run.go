package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/todmy/fiscal-crossval/internal/config"
	"github.com/todmy/fiscal-crossval/internal/crossval"
	"github.com/todmy/fiscal-crossval/internal/storage"
	"github.com/todmy/fiscal-crossval/pkg/models"
)

type runOptions struct {
	input   string
	runID   string
	outDir  string
	workers int
	quiet   bool
}

func newRunCmd(cfgFile *string) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Cross-validate the documents of an extraction report",
		Long: `run reads a JSON report of the form {"documents": [...]}, compares the line
items shared between documents and writes the artifacts of the run to
<out>/<run-id>/. When --run-id is omitted a random one is generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrossval(cmd.OutOrStdout(), cmd.ErrOrStderr(), *cfgFile, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "path to the JSON extraction report")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "identifier of the run, used in artifact names")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "directory artifacts are written to (overrides artifacts.dir)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "number of groups compared concurrently (overrides engine.workers)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress engine logging")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runCrossval(stdout, stderr io.Writer, cfgFile string, opts *runOptions) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if opts.outDir != "" {
		cfg.Artifacts.Dir = opts.outDir
	}
	if opts.workers > 0 {
		cfg.Engine.Workers = opts.workers
	}

	report, err := readReport(opts.input)
	if err != nil {
		return err
	}

	runID := opts.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	logger := log.New(stderr, "", log.LstdFlags)
	if opts.quiet {
		logger = log.New(io.Discard, "", 0)
	}

	store := storage.NewFileArtifactRepository(cfg.Artifacts.Dir)
	engine := crossval.NewEngine(crossval.Config{
		Tolerance: crossval.Tolerance{
			Absolute: cfg.Engine.AbsoluteTolerance,
			Relative: cfg.Engine.RelativeTolerance,
		},
		Workers:              cfg.Engine.Workers,
		SkipSchemaValidation: cfg.Engine.SkipSchemaValidation,
		Logger:               logger,
	}, store)

	result, err := engine.Run(context.Background(), *report, runID)
	if err != nil {
		return err
	}

	printSummary(stdout, result, store.Dir(runID))
	return nil
}

func readReport(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	if report.Documents == nil {
		return nil, errors.New("report has no \"documents\" field")
	}
	return &report, nil
}

func printSummary(w io.Writer, result *models.Result, dir string) {
	fmt.Fprintf(w, "Run %s\n", result.RunID)
	fmt.Fprintf(w, "  documents:     %d (%d valid)\n", result.Stats.Documents, result.Stats.ValidDocuments)
	fmt.Fprintf(w, "  groups:        %d\n", result.Stats.Groups)

	if len(result.Findings) == 0 {
		fmt.Fprintln(w, "  no material inconsistencies found")
	} else {
		fmt.Fprintf(w, "  findings:      %d\n", result.Stats.Findings)
		fmt.Fprintf(w, "  discrepancies: %d\n", result.Stats.Discrepancies)
		for _, f := range result.Findings {
			fmt.Fprintf(w, "    [%s] %s\n", f.RuleCode, f.Justification)
		}
	}

	fmt.Fprintf(w, "Artifacts in %s:\n", dir)
	for _, a := range result.Artifacts {
		fmt.Fprintf(w, "  %-4s %s  sha256:%s\n", a.Format, a.Filename, a.SHA256)
	}
}
