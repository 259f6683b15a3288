package workflows

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	drtemporal "github.com/helixir/deep-research-service/internal/temporal"
)

// historyDir resolves testdata/workflow_histories relative to this file so the
// test works from any working directory.
func historyDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "testdata", "workflow_histories")
}

// TestReplayWorkflowHistory replays every captured history through the current
// DeepResearchWorkflow. A failure means the workflow changed in a way that
// breaks runs already in flight.
//
// Capture a history from a running cluster with:
//
//	temporal workflow show --workflow-id research-<session id> \
//	  --output json > testdata/workflow_histories/<name>.json
func TestReplayWorkflowHistory(t *testing.T) {
	entries, err := os.ReadDir(historyDir())
	if err != nil {
		t.Skipf("no workflow histories: %v", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			files = append(files, filepath.Join(historyDir(), entry.Name()))
		}
	}
	if len(files) == 0 {
		t.Skip("no workflow history JSON files in testdata/workflow_histories")
	}

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			replayer := worker.NewWorkflowReplayer()
			replayer.RegisterWorkflowWithOptions(DeepResearchWorkflow, workflow.RegisterOptions{
				Name: drtemporal.ResearchWorkflowName,
			})
			require.NoError(t, replayer.ReplayWorkflowHistoryFromJSONFile(nil, path))
		})
	}
}
