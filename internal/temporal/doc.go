// Package temporal runs research sessions as durable Temporal workflows.
//
// The parent package holds what both sides of the wire need: the client used
// by the HTTP server to start, query and signal runs, the worker manager used
// by the worker binary, and the shared input and progress types. Workflow and
// activity implementations live in the workflows and activities subpackages.
//
// Each session maps to one workflow ID, so starting a second run for a session
// that is still in flight fails with ErrWorkflowAlreadyStarted:
//
//	rc := temporal.NewResearchClient(c, temporal.ClientConfig{TaskQueue: "deep-research-tasks"})
//	_, _, err := rc.StartResearch(ctx, temporal.ResearchWorkflowInput{
//	    SessionID: research.NewSessionID(time.Now()),
//	    Topic:     "impact of AI on healthcare",
//	})
//	if temporal.IsWorkflowAlreadyStarted(err) {
//	    // a run for this session is still active
//	}
//
// Activities are not retried. A failed stage fails the run, and the session
// can be resumed from its persisted artifacts by starting a new run with the
// same session ID and no topic.
package temporal
