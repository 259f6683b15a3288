package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/helixir/deep-research-service/internal/app"
	"github.com/helixir/deep-research-service/internal/config"
	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/research"
	"github.com/helixir/deep-research-service/internal/storage"
)

type showFlags struct {
	reports   bool
	reference bool
	final     string
	model     string
}

func newShowCmd() *cobra.Command {
	var flags showFlags
	cmd := &cobra.Command{
		Use:   "show RESEARCH_ID",
		Short: "Print a persisted session and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cliLogging(cfg), "cli")

			store, err := storage.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open artifact store: %w", err)
			}
			defer store.Close()

			return showSession(cmd.Context(), cmd.OutOrStdout(), research.NewArtifacts(store, cfg.LLM.Models.Report), args[0], flags)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.reports, "reports", false, "print every category report")
	f.BoolVar(&flags.reference, "reference", false, "print the reference document")
	f.StringVar(&flags.final, "final", "", "print the final report in this mode: research, detailed or wechat")
	f.StringVar(&flags.model, "model", "", "model whose final report to print")
	return cmd
}

func showSession(ctx context.Context, out io.Writer, artifacts *research.Artifacts, id string, flags showFlags) error {
	s, err := artifacts.Session(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Research ID:   %s\n", s.ID)
	fmt.Fprintf(out, "Topic:         %s\n", s.Topic)
	fmt.Fprintf(out, "English topic: %s\n", s.EnglishTopic)
	fmt.Fprintf(out, "Categories:    %d\n", len(s.ResearchPlan))
	for _, c := range s.ResearchPlan {
		fmt.Fprintf(out, "  %s (%d queries)\n", c.Category, len(c.Queries))
	}

	if flags.reports {
		reports, err := artifacts.CategoryReports(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range reports {
			fmt.Fprintf(out, "\n## %s\n\n%s\n", r.Category, r.Report)
		}
	}

	if flags.reference {
		doc, err := artifacts.Reference(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n", doc)
	}

	if flags.final != "" {
		mode, err := domain.ParseReportMode(flags.final)
		if err != nil {
			return err
		}
		report, err := artifacts.FinalReport(ctx, id, mode, flags.model)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n", report)
	}
	return nil
}
