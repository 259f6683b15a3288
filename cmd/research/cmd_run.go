package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixir/deep-research-service/internal/app"
	"github.com/helixir/deep-research-service/internal/config"
	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/research"
)

type runFlags struct {
	topic      string
	researchID string
	reportMode string
	model      string
	stage      string
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a research session or resume one",
		Example: "  research run -t \"Impact of AI on healthcare\"\n" +
			"  research run -r RS_20250301_101500_abc123 -p wechat\n" +
			"  research run -r RS_20250301_101500_abc123 --stage reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			return runResearch(cmd, req)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.topic, "topic", "t", "", "research topic for a new session")
	f.StringVarP(&flags.researchID, "research-id", "r", "", "existing session to resume")
	f.StringVarP(&flags.reportMode, "report-mode", "p", string(domain.ReportModeDetailed), "final report style: research, detailed or wechat")
	f.StringVar(&flags.model, "model", "", "override the final report model")
	f.StringVar(&flags.stage, "stage", "", "with --research-id, run one stage: search, reports, reference, final or all")

	cmd.MarkFlagsMutuallyExclusive("topic", "research-id")
	cmd.MarkFlagsOneRequired("topic", "research-id")
	return cmd
}

// request checks the flags that cobra cannot and builds the engine request.
func (f runFlags) request() (research.RunRequest, error) {
	mode, err := domain.ParseReportMode(f.reportMode)
	if err != nil {
		return research.RunRequest{}, err
	}
	id := strings.TrimSpace(f.researchID)
	if id != "" && !research.ValidSessionID(id) {
		return research.RunRequest{}, domain.NewValidationError("research_id", "malformed research id "+id)
	}
	if f.topic != "" && strings.TrimSpace(f.topic) == "" {
		return research.RunRequest{}, domain.NewValidationError("topic", "topic is blank")
	}
	return research.RunRequest{
		Topic:     f.topic,
		SessionID: id,
		Mode:      mode,
		Model:     f.model,
		Stage:     f.stage,
	}, nil
}

func runResearch(cmd *cobra.Command, req research.RunRequest) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cliLogging(cfg), "cli")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to release runtime")
		}
	}()

	result, err := rt.Engine.Run(ctx, req)
	if err != nil {
		ev := logger.Error().Err(err)
		if result != nil && result.Session != nil {
			ev = ev.Str("session_id", result.Session.ID)
		}
		ev.Msg("research run failed")
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Research ID: %s\n", result.Session.ID)
	if result.Report != "" {
		fmt.Fprintf(out, "\n%s\n", result.Report)
	}
	return nil
}
