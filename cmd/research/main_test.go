package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/research"
	"github.com/helixir/deep-research-service/internal/storage"
)

const testID = "RS_20250301_101500_abc123"

func TestRunFlags_Request(t *testing.T) {
	tests := []struct {
		name    string
		flags   runFlags
		want    research.RunRequest
		wantErr bool
	}{
		{
			name:  "topic with default mode",
			flags: runFlags{topic: "AI in healthcare", reportMode: "detailed"},
			want:  research.RunRequest{Topic: "AI in healthcare", Mode: domain.ReportModeDetailed},
		},
		{
			name:  "resume with stage and model",
			flags: runFlags{researchID: " " + testID + " ", reportMode: "WECHAT", model: "m", stage: "reports"},
			want:  research.RunRequest{SessionID: testID, Mode: domain.ReportModeWechat, Model: "m", Stage: "reports"},
		},
		{
			name:    "unknown mode",
			flags:   runFlags{topic: "t", reportMode: "poem"},
			wantErr: true,
		},
		{
			name:    "malformed id",
			flags:   runFlags{researchID: "../RS", reportMode: "research"},
			wantErr: true,
		},
		{
			name:    "blank topic",
			flags:   runFlags{topic: "   ", reportMode: "research"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.request()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunCmd_FlagRules(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"neither", []string{}},
		{"both", []string{"-t", "AI", "-r", testID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestShowSession(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	session := domain.Session{
		ID:              testID,
		Topic:           "人工智能",
		EnglishTopic:    "Artificial intelligence",
		ResearchContent: &domain.ResearchContent{CoreResearchTopic: "AI"},
		ResearchPlan: []domain.CategoryPlan{
			{Category: "History", Queries: []string{"q1", "q2"}},
		},
	}
	require.NoError(t, store.SaveJSON(ctx, research.MetaPath(testID), session))
	require.NoError(t, store.SaveJSON(ctx, research.CategoryReportPath(testID, "History"),
		domain.CategoryReport{Category: "History", Report: "It began in 1956."}))
	require.NoError(t, store.SaveText(ctx, research.ReferencePath(testID), "## Reference\n- https://a.example"))
	require.NoError(t, store.SaveText(ctx, research.FinalReportPath(testID, "report-model", domain.ReportModeWechat), "# Final"))

	artifacts := research.NewArtifacts(store, "report-model")

	var out bytes.Buffer
	require.NoError(t, showSession(ctx, &out, artifacts, testID, showFlags{reports: true, reference: true, final: "wechat"}))

	text := out.String()
	assert.Contains(t, text, "Research ID:   "+testID)
	assert.Contains(t, text, "English topic: Artificial intelligence")
	assert.Contains(t, text, "History (2 queries)")
	assert.Contains(t, text, "## History\n\nIt began in 1956.")
	assert.Contains(t, text, "https://a.example")
	assert.Contains(t, text, "# Final")

	out.Reset()
	err = showSession(ctx, &out, artifacts, testID, showFlags{final: "research"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = showSession(ctx, &out, artifacts, "RS_20250301_101500_ffffff", showFlags{})
	assert.ErrorIs(t, err, domain.ErrLoad)
}
