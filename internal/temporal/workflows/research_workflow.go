// Package workflows defines the Temporal workflow that drives a research session
// through its stages.
package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/deep-research-service/internal/domain"
	drtemporal "github.com/helixir/deep-research-service/internal/temporal"
	"github.com/helixir/deep-research-service/internal/temporal/activities"
)

const (
	SignalCancel  = drtemporal.SignalCancel
	SignalStop    = drtemporal.SignalStop
	QueryProgress = drtemporal.QueryProgress
)

// ResearchWorkflowInput is the shared input type defined in the parent package.
type ResearchWorkflowInput = drtemporal.ResearchWorkflowInput

// stageAll selects every stage on an existing session.
const stageAll = "all"

// stageLoad is reported in progress while a resumed session is being checked.
const stageLoad = "load"

// Per-stage activity timeouts. A single LLM call may take the configured
// client timeout, and the final report may need several continuation calls.
var stageTimeouts = map[domain.Stage]time.Duration{
	domain.StageCreate:    20 * time.Minute,
	domain.StageSearch:    time.Hour,
	domain.StageReports:   2 * time.Hour,
	domain.StageReference: 5 * time.Minute,
	domain.StageFinal:     time.Hour,
}

const loadTimeout = time.Minute

// ResearchWorkflowResult summarizes a finished run.
type ResearchWorkflowResult struct {
	SessionID       string
	Status          string
	CompletedStages []string
	SearchRecords   int
	CategoryReports int
	ReportLength    int
	Duration        float64
}

// StopSignal asks the workflow to end after the stage in flight.
type StopSignal = drtemporal.StopSignal

// PlanStages returns the stages a run executes, in order. A new topic always
// runs every stage. An existing session runs the final report by default,
// every remaining stage for "all", or the single stage named.
func PlanStages(input ResearchWorkflowInput) ([]domain.Stage, error) {
	if input.SessionID == "" {
		return nil, domain.NewValidationError("session_id", "session id is required")
	}
	if _, err := domain.ParseReportMode(input.Mode); err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Topic) != "" {
		if input.Stage != "" && input.Stage != stageAll {
			return nil, domain.NewValidationError("stage", "a new topic always runs every stage")
		}
		return []domain.Stage{
			domain.StageCreate, domain.StageSearch, domain.StageReports, domain.StageReference, domain.StageFinal,
		}, nil
	}

	switch input.Stage {
	case "", string(domain.StageFinal):
		return []domain.Stage{domain.StageFinal}, nil
	case stageAll:
		return []domain.Stage{domain.StageSearch, domain.StageReports, domain.StageReference, domain.StageFinal}, nil
	case string(domain.StageSearch), string(domain.StageReports), string(domain.StageReference):
		return []domain.Stage{domain.Stage(input.Stage)}, nil
	}
	return nil, domain.NewValidationError("stage", fmt.Sprintf("unknown stage %q", input.Stage))
}

// DeepResearchWorkflow runs the stages chosen by PlanStages, one activity per
// stage. Activities are never retried: a failed stage fails the run and the
// session is resumed by starting a new run without a topic.
//
// The "progress" query returns a temporal.WorkflowProgress. The "stop" signal
// ends the run after the current stage and the "cancel" signal interrupts it.
func DeepResearchWorkflow(ctx workflow.Context, input ResearchWorkflowInput) (*ResearchWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	progress := &drtemporal.WorkflowProgress{
		SessionID:       input.SessionID,
		Status:          drtemporal.StatusRunning,
		CompletedStages: []string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*drtemporal.WorkflowProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	stages, err := PlanStages(input)
	if err != nil {
		progress.Status = drtemporal.StatusFailed
		progress.Error = err.Error()
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), activities.ErrTypeInvalidInput, err)
	}

	cancelCtx, cancelFunc := workflow.WithCancel(ctx)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		workflow.GetSignalChannel(gCtx, SignalCancel).Receive(gCtx, nil)
		logger.Info("received cancel signal", "sessionID", input.SessionID)
		cancelFunc()
	})

	var stop *StopSignal
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var sig StopSignal
		workflow.GetSignalChannel(gCtx, SignalStop).Receive(gCtx, &sig)
		logger.Info("received stop signal", "sessionID", input.SessionID, "reason", sig.Reason)
		stop = &sig
	})

	var acts *activities.ResearchActivities
	stageCtx := func(timeout time.Duration) workflow.Context {
		return workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
			StartToCloseTimeout: timeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})
	}

	result := &ResearchWorkflowResult{SessionID: input.SessionID}
	finish := func(status string, runErr error) (*ResearchWorkflowResult, error) {
		progress.Status = status
		result.Status = status
		result.CompletedStages = append([]string(nil), progress.CompletedStages...)
		result.Duration = workflow.Now(ctx).Sub(startTime).Seconds()
		if runErr != nil {
			progress.Error = runErr.Error()
			logger.Error("research workflow failed", "sessionID", input.SessionID, "stage", progress.Stage, "error", runErr)
			return nil, runErr
		}
		logger.Info("research workflow finished",
			"sessionID", input.SessionID,
			"status", status,
			"completedStages", result.CompletedStages,
			"duration", result.Duration,
		)
		return result, nil
	}
	fail := func(stage string, err error) (*ResearchWorkflowResult, error) {
		var canceled *temporal.CanceledError
		if errors.As(err, &canceled) || cancelCtx.Err() != nil {
			return finish(drtemporal.StatusCancelled, stageFailure(stage, activities.ErrTypeCanceled, err))
		}
		return finish(drtemporal.StatusFailed, stageFailure(stage, "", err))
	}

	if stages[0] != domain.StageCreate {
		progress.Stage = stageLoad
		var loaded activities.SessionOutput
		if err := workflow.ExecuteActivity(stageCtx(loadTimeout), acts.LoadSession,
			activities.StageInput{SessionID: input.SessionID}).Get(cancelCtx, &loaded); err != nil {
			return fail(stageLoad, err)
		}
	}

	for _, stage := range stages {
		if stop != nil {
			return finish(drtemporal.StatusStopped, nil)
		}

		progress.Stage = string(stage)
		actCtx := stageCtx(stageTimeouts[stage])
		in := activities.StageInput{SessionID: input.SessionID}

		switch stage {
		case domain.StageCreate:
			var out activities.SessionOutput
			err = workflow.ExecuteActivity(actCtx, acts.CreateSession, activities.CreateSessionInput{
				SessionID: input.SessionID,
				Topic:     input.Topic,
			}).Get(cancelCtx, &out)
		case domain.StageSearch:
			var out activities.SearchOutput
			err = workflow.ExecuteActivity(actCtx, acts.ExecuteSearch, in).Get(cancelCtx, &out)
			progress.SearchRecords = out.Records
			result.SearchRecords = out.Records
		case domain.StageReports:
			var out activities.CategoryReportsOutput
			err = workflow.ExecuteActivity(actCtx, acts.GenerateCategoryReports, in).Get(cancelCtx, &out)
			progress.CategoryReports = len(out.Categories)
			result.CategoryReports = len(out.Categories)
		case domain.StageReference:
			var out activities.ReferenceOutput
			err = workflow.ExecuteActivity(actCtx, acts.GenerateReference, in).Get(cancelCtx, &out)
			if len(stages) == 1 {
				progress.ReportLength = out.Length
				result.ReportLength = out.Length
			}
		case domain.StageFinal:
			var out activities.FinalReportOutput
			err = workflow.ExecuteActivity(actCtx, acts.GenerateFinalReport, activities.FinalReportInput{
				SessionID: input.SessionID,
				Mode:      input.Mode,
				Model:     input.Model,
			}).Get(cancelCtx, &out)
			progress.ReportLength = out.Length
			result.ReportLength = out.Length
		}
		if err != nil {
			return fail(string(stage), err)
		}
		progress.CompletedStages = append(progress.CompletedStages, string(stage))
	}

	return finish(drtemporal.StatusCompleted, nil)
}

// stageFailure wraps a stage error so the workflow failure keeps the error type
// reported by the activity.
func stageFailure(stage, errType string, err error) error {
	if errType == "" {
		errType = activities.ErrTypeStage
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() != "" {
			errType = appErr.Type()
		}
	}
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf("%s stage failed", stage), errType, err)
}
