package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"veritas/cmd/veritas/ui"
	"veritas/internal/backend"
	"veritas/internal/types"
	"veritas/internal/workflow"
)

var (
	scanText        string
	scanFile        string
	scanDeepDive    bool
	scanEscalate    bool
	scanReconstruct bool
)

// scanCmd runs the pipeline headlessly
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Submit content and drive the pipeline without the console",
	Long: `Submits text and/or a file for triage, then optionally fetches the
deep-dive findings, escalates for adjudication, and triggers reconstruction.

Stages run only when the previous result allows them: adjudication needs a
non-empty routing decision and reconstruction needs a manipulated verdict.

Example:
  veritas scan --text "Breaking: ..." --deep-dive --escalate --reconstruct
  veritas scan --file frame.png --json`,
	RunE: runScan,
}

var deepDiveCmd = &cobra.Command{
	Use:   "deep-dive [scan-id]",
	Short: "Fetch the deep-dive findings for a scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeepDive,
}

var adjudicateCmd = &cobra.Command{
	Use:   "adjudicate [scan-id]",
	Short: "Escalate a scan for adjudication",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdjudicate,
}

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct [scan-id]",
	Short: "Trigger reconstruction for a scan judged manipulated",
	Args:  cobra.ExactArgs(1),
	RunE:  runReconstruct,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the analysis service is reachable",
	RunE:  runHealth,
}

func init() {
	scanCmd.Flags().StringVarP(&scanText, "text", "t", "", "Text content to analyze")
	scanCmd.Flags().StringVarP(&scanFile, "file", "f", "", "File to attach")
	scanCmd.Flags().BoolVar(&scanDeepDive, "deep-dive", false, "Fetch deep-dive findings after triage")
	scanCmd.Flags().BoolVar(&scanEscalate, "escalate", false, "Escalate for adjudication when routing allows it")
	scanCmd.Flags().BoolVar(&scanReconstruct, "reconstruct", false, "Trigger reconstruction when the verdict is manipulated (implies --escalate)")
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func readSubmission() (types.ScanSubmission, error) {
	sub := types.ScanSubmission{Text: scanText}
	if scanFile != "" {
		info, err := os.Stat(scanFile)
		if err != nil {
			return sub, fmt.Errorf("failed to read attachment: %w", err)
		}
		if limit := cfg.Backend.MaxUploadBytes; info.Size() > limit {
			return sub, fmt.Errorf("attachment %s is %d bytes, limit is %d", filepath.Base(scanFile), info.Size(), limit)
		}
		data, err := os.ReadFile(scanFile)
		if err != nil {
			return sub, fmt.Errorf("failed to read attachment: %w", err)
		}
		sub.Attachment = &types.Attachment{Name: filepath.Base(scanFile), Data: data}
	}
	if !sub.Ready() {
		return sub, fmt.Errorf("provide --text or --file")
	}
	return sub, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	sub, err := readSubmission()
	if err != nil {
		return err
	}
	client, err := backend.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	runner := workflow.NewRunner(client)
	report, err := runner.Run(ctx, sub, workflow.RunOptions{
		DeepDive:    scanDeepDive,
		Escalate:    scanEscalate || scanReconstruct,
		Reconstruct: scanReconstruct,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if report.Triage == nil {
		return fmt.Errorf("scan failed at triage")
	}
	return nil
}

func printReport(w io.Writer, report workflow.Report) {
	r := newRenderer()
	s := r.Styles()
	var cards []string
	if report.Triage != nil {
		cards = append(cards, r.TriageCard(*report.Triage))
	}
	if report.DeepDive != nil {
		cards = append(cards, r.DeepDiveCard(*report.DeepDive))
	}
	if report.Adjudication != nil {
		cards = append(cards, r.AdjudicationCard(*report.Adjudication))
	}
	if report.Reconstruction != nil {
		cards = append(cards, r.ReconstructionCard(*report.Reconstruction))
	}
	for i, card := range cards {
		if i > 0 {
			fmt.Fprintln(w, s.RenderDivider(r.Width()))
		}
		fmt.Fprintln(w, card)
	}
	for _, f := range report.Failures {
		fmt.Fprintln(w, s.Error.Render(f.Error()))
	}
	fmt.Fprintln(w, s.Muted.Render("state: "+report.State))
}

func newRenderer() *ui.Renderer {
	width := 80
	if cfg.UI.WordWrap > 0 {
		width = cfg.UI.WordWrap
	}
	return ui.NewRenderer(ui.NewStyles(ui.DetectTheme(cfg.UI.Theme)), width, cfg.UI.Markdown)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runStage performs a single stage call and prints its result or failure.
func runStage[T any](cmd *cobra.Command, stage types.Stage, call func(context.Context, *backend.Client) (T, error), render func(*ui.Renderer, T) string) error {
	client, err := backend.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	res, err := call(ctx, client)
	if err != nil {
		f := backend.FailureOf(stage, err)
		if jsonOutput {
			_ = writeJSON(cmd.OutOrStdout(), f)
		}
		return f
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintln(cmd.OutOrStdout(), render(newRenderer(), res))
	return nil
}

func runDeepDive(cmd *cobra.Command, args []string) error {
	return runStage(cmd, types.StageDeepDive,
		func(ctx context.Context, c *backend.Client) (types.DeepDiveResult, error) {
			return c.DeepDive(ctx, args[0])
		},
		(*ui.Renderer).DeepDiveCard)
}

// runAdjudicate calls the adjudication endpoint directly. The service is
// responsible for rejecting scans that were never routed.
func runAdjudicate(cmd *cobra.Command, args []string) error {
	return runStage(cmd, types.StageAdjudication,
		func(ctx context.Context, c *backend.Client) (types.AdjudicationResult, error) {
			return c.Adjudicate(ctx, args[0])
		},
		(*ui.Renderer).AdjudicationCard)
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	return runStage(cmd, types.StageReconstruction,
		func(ctx context.Context, c *backend.Client) (types.ReconstructionResult, error) {
			return c.Reconstruct(ctx, args[0])
		},
		(*ui.Renderer).ReconstructionCard)
}

func runHealth(cmd *cobra.Command, args []string) error {
	client, err := backend.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	info, err := client.Health(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), info)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", client.BaseURL(), info.Status, info.Engine)
	return nil
}
