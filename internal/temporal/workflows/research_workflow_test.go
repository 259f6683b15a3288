package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixir/deep-research-service/internal/domain"
	drtemporal "github.com/helixir/deep-research-service/internal/temporal"
	"github.com/helixir/deep-research-service/internal/temporal/activities"
)

const testSessionID = "RS_20250301_101500_abc123"

func newTopicInput() ResearchWorkflowInput {
	return ResearchWorkflowInput{
		SessionID: testSessionID,
		Topic:     "Impact of AI on healthcare",
		Mode:      "detailed",
	}
}

// mockAllStages registers successful mocks for every stage activity.
func mockAllStages(env *testsuite.TestWorkflowEnvironment) {
	var acts *activities.ResearchActivities

	env.OnActivity(acts.CreateSession, mock.Anything, mock.Anything).Return(
		&activities.SessionOutput{SessionID: testSessionID, Categories: 2, Queries: 3}, nil)
	env.OnActivity(acts.LoadSession, mock.Anything, mock.Anything).Return(
		&activities.SessionOutput{SessionID: testSessionID, Categories: 2, Queries: 3}, nil)
	env.OnActivity(acts.ExecuteSearch, mock.Anything, mock.Anything).Return(
		&activities.SearchOutput{Records: 3}, nil)
	env.OnActivity(acts.GenerateCategoryReports, mock.Anything, mock.Anything).Return(
		&activities.CategoryReportsOutput{Categories: []string{"Regulation", "Adoption"}}, nil)
	env.OnActivity(acts.GenerateReference, mock.Anything, mock.Anything).Return(
		&activities.ReferenceOutput{Length: 40}, nil)
	env.OnActivity(acts.GenerateFinalReport, mock.Anything, mock.Anything).Return(
		&activities.FinalReportOutput{Mode: "detailed", Length: 1200}, nil)
}

func TestPlanStages(t *testing.T) {
	all := []domain.Stage{domain.StageCreate, domain.StageSearch, domain.StageReports, domain.StageReference, domain.StageFinal}

	tests := []struct {
		name    string
		input   ResearchWorkflowInput
		want    []domain.Stage
		wantErr bool
	}{
		{"new topic", ResearchWorkflowInput{SessionID: "s", Topic: "t"}, all, false},
		{"new topic with all", ResearchWorkflowInput{SessionID: "s", Topic: "t", Stage: "all"}, all, false},
		{"new topic with single stage", ResearchWorkflowInput{SessionID: "s", Topic: "t", Stage: "search"}, nil, true},
		{"resume defaults to final", ResearchWorkflowInput{SessionID: "s"}, []domain.Stage{domain.StageFinal}, false},
		{"resume all", ResearchWorkflowInput{SessionID: "s", Stage: "all"}, all[1:], false},
		{"resume reports", ResearchWorkflowInput{SessionID: "s", Stage: "reports"}, []domain.Stage{domain.StageReports}, false},
		{"unknown stage", ResearchWorkflowInput{SessionID: "s", Stage: "publish"}, nil, true},
		{"unknown mode", ResearchWorkflowInput{SessionID: "s", Mode: "poem"}, nil, true},
		{"missing session", ResearchWorkflowInput{Topic: "t"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlanStages(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeepResearchWorkflow_NewTopic(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	mockAllStages(env)

	env.ExecuteWorkflow(DeepResearchWorkflow, newTopicInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, drtemporal.StatusCompleted, result.Status)
	assert.Equal(t, []string{"create", "search", "reports", "reference", "final"}, result.CompletedStages)
	assert.Equal(t, 3, result.SearchRecords)
	assert.Equal(t, 2, result.CategoryReports)
	assert.Equal(t, 1200, result.ReportLength)

	env.AssertNotCalled(t, "LoadSession", mock.Anything, mock.Anything)
	env.AssertCalled(t, "GenerateFinalReport", mock.Anything, activities.FinalReportInput{
		SessionID: testSessionID,
		Mode:      "detailed",
	})

	encoded, err := env.QueryWorkflow(QueryProgress)
	require.NoError(t, err)
	var progress drtemporal.WorkflowProgress
	require.NoError(t, encoded.Get(&progress))
	assert.Equal(t, drtemporal.StatusCompleted, progress.Status)
	assert.Equal(t, "final", progress.Stage)
	assert.Equal(t, testSessionID, progress.SessionID)
}

func TestDeepResearchWorkflow_ResumeFinalOnly(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	mockAllStages(env)

	env.ExecuteWorkflow(DeepResearchWorkflow, ResearchWorkflowInput{SessionID: testSessionID})

	require.NoError(t, env.GetWorkflowError())
	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, []string{"final"}, result.CompletedStages)

	env.AssertCalled(t, "LoadSession", mock.Anything, activities.StageInput{SessionID: testSessionID})
	env.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "ExecuteSearch", mock.Anything, mock.Anything)
}

func TestDeepResearchWorkflow_ResumeIncompleteSession(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var acts *activities.ResearchActivities
	env.OnActivity(acts.LoadSession, mock.Anything, mock.Anything).Return(nil,
		temporal.NewNonRetryableApplicationError("missing research_plan", activities.ErrTypeLoad, nil))

	env.ExecuteWorkflow(DeepResearchWorkflow, ResearchWorkflowInput{SessionID: testSessionID, Stage: "all"})

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, activities.ErrTypeLoad, appErr.Type())
}

func TestDeepResearchWorkflow_StageFailureStopsRun(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var acts *activities.ResearchActivities
	env.OnActivity(acts.CreateSession, mock.Anything, mock.Anything).Return(
		&activities.SessionOutput{SessionID: testSessionID}, nil)
	env.OnActivity(acts.ExecuteSearch, mock.Anything, mock.Anything).Return(nil,
		temporal.NewNonRetryableApplicationError("tavily search: 503", activities.ErrTypeService, nil))

	env.ExecuteWorkflow(DeepResearchWorkflow, newTopicInput())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search")

	env.AssertNotCalled(t, "GenerateCategoryReports", mock.Anything, mock.Anything)

	encoded, qErr := env.QueryWorkflow(QueryProgress)
	require.NoError(t, qErr)
	var progress drtemporal.WorkflowProgress
	require.NoError(t, encoded.Get(&progress))
	assert.Equal(t, drtemporal.StatusFailed, progress.Status)
	assert.Equal(t, []string{"create"}, progress.CompletedStages)
	assert.NotEmpty(t, progress.Error)
}

func TestDeepResearchWorkflow_InvalidInput(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.ExecuteWorkflow(DeepResearchWorkflow, ResearchWorkflowInput{SessionID: testSessionID, Stage: "publish"})

	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, activities.ErrTypeInvalidInput, appErr.Type())
}

func TestDeepResearchWorkflow_StopSignal(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var acts *activities.ResearchActivities
	env.OnActivity(acts.CreateSession, mock.Anything, mock.Anything).Return(
		&activities.SessionOutput{SessionID: testSessionID}, nil)
	env.OnActivity(acts.ExecuteSearch, mock.Anything, mock.Anything).
		After(time.Minute).
		Return(&activities.SearchOutput{Records: 3}, nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStop, StopSignal{Reason: "enough"})
	}, time.Second)

	env.ExecuteWorkflow(DeepResearchWorkflow, newTopicInput())

	require.NoError(t, env.GetWorkflowError())
	var result ResearchWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, drtemporal.StatusStopped, result.Status)
	assert.Equal(t, []string{"create", "search"}, result.CompletedStages)
	env.AssertNotCalled(t, "GenerateCategoryReports", mock.Anything, mock.Anything)
}

func TestDeepResearchWorkflow_CancelSignal(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var acts *activities.ResearchActivities
	env.OnActivity(acts.CreateSession, mock.Anything, mock.Anything).
		After(time.Hour).
		Return(&activities.SessionOutput{SessionID: testSessionID}, nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancel, nil)
	}, time.Second)

	env.ExecuteWorkflow(DeepResearchWorkflow, newTopicInput())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create")

	encoded, qErr := env.QueryWorkflow(QueryProgress)
	require.NoError(t, qErr)
	var progress drtemporal.WorkflowProgress
	require.NoError(t, encoded.Get(&progress))
	assert.Equal(t, drtemporal.StatusCancelled, progress.Status)
	assert.Empty(t, progress.CompletedStages)
}
