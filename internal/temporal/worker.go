package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// TaskQueue is the name of the task queue to poll.
	TaskQueue string

	// MaxConcurrentActivityExecutionSize caps concurrent activities. A research
	// stage holds one LLM or search call at a time, so this bounds the number
	// of sessions making progress at once. Default: 8
	MaxConcurrentActivityExecutionSize int

	// MaxConcurrentWorkflowTaskExecutionSize defaults to 16.
	MaxConcurrentWorkflowTaskExecutionSize int
}

const (
	defaultActivityConcurrency     = 8
	defaultWorkflowTaskConcurrency = 16
)

// DefaultWorkerConfig returns a WorkerConfig with default values.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                              taskQueue,
		MaxConcurrentActivityExecutionSize:     defaultActivityConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: defaultWorkflowTaskConcurrency,
	}
}

// workerOptionsFromConfig builds worker.Options, applying defaults for zero fields.
func workerOptionsFromConfig(config WorkerConfig) worker.Options {
	options := worker.Options{
		MaxConcurrentActivityExecutionSize:     config.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: config.MaxConcurrentWorkflowTaskExecutionSize,
	}
	if options.MaxConcurrentActivityExecutionSize == 0 {
		options.MaxConcurrentActivityExecutionSize = defaultActivityConcurrency
	}
	if options.MaxConcurrentWorkflowTaskExecutionSize == 0 {
		options.MaxConcurrentWorkflowTaskExecutionSize = defaultWorkflowTaskConcurrency
	}
	return options
}

// WorkerManager owns a Temporal worker and the names registered on it.
type WorkerManager struct {
	worker    worker.Worker
	taskQueue string
	workflows []string
}

// NewWorkerManager creates a worker polling config.TaskQueue.
func NewWorkerManager(c client.Client, config WorkerConfig) (*WorkerManager, error) {
	if config.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}
	return &WorkerManager{
		worker:    worker.New(c, config.TaskQueue, workerOptionsFromConfig(config)),
		taskQueue: config.TaskQueue,
	}, nil
}

// RegisterWorkflow registers fn under name, so a client can start it by name
// without importing the workflow package.
func (m *WorkerManager) RegisterWorkflow(name string, fn interface{}) {
	m.workflows = append(m.workflows, name)
	m.worker.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
}

// RegisterActivity registers an activity struct; each exported method becomes
// an activity named after the method.
func (m *WorkerManager) RegisterActivity(a interface{}) {
	m.worker.RegisterActivityWithOptions(a, activity.RegisterOptions{SkipInvalidStructFunctions: true})
}

// Workflows returns the registered workflow names.
func (m *WorkerManager) Workflows() []string {
	return append([]string(nil), m.workflows...)
}

// TaskQueue returns the configured task queue name.
func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start runs the worker until ctx is cancelled or the worker fails.
func (m *WorkerManager) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.worker.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		m.worker.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop stops the worker gracefully.
func (m *WorkerManager) Stop() {
	m.worker.Stop()
}
