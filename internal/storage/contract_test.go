package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/deep-research-service/internal/domain"
)

type sample struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("json round trip", func(t *testing.T) {
		in := sample{Title: "Régulation <IA>", Score: 0.7}
		require.NoError(t, s.SaveJSON(ctx, "RS_1/Regulation/AI_policy.json", in))

		var out sample
		require.NoError(t, s.LoadJSON(ctx, "RS_1/Regulation/AI_policy.json", &out))
		assert.Equal(t, in, out)
	})

	t.Run("overwrite replaces content", func(t *testing.T) {
		require.NoError(t, s.SaveJSON(ctx, "RS_1/Regulation/overwrite.json", sample{Title: "first"}))
		require.NoError(t, s.SaveJSON(ctx, "RS_1/Regulation/overwrite.json", sample{Title: "second"}))

		var out sample
		require.NoError(t, s.LoadJSON(ctx, "RS_1/Regulation/overwrite.json", &out))
		assert.Equal(t, "second", out.Title)

		listed, err := s.List(ctx, "RS_1/Regulation", "overwrite.json")
		require.NoError(t, err)
		assert.Equal(t, []string{"RS_1/Regulation/overwrite.json"}, listed)
	})

	t.Run("text round trip", func(t *testing.T) {
		require.NoError(t, s.SaveText(ctx, "RS_1/RS_1_reference.md", "## Reference\n\n- [a](b)"))
		got, err := s.LoadText(ctx, "RS_1/RS_1_reference.md")
		require.NoError(t, err)
		assert.Equal(t, "## Reference\n\n- [a](b)", got)
	})

	t.Run("missing artifact is not found", func(t *testing.T) {
		var out sample
		err := s.LoadJSON(ctx, "RS_1/missing.json", &out)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = s.LoadText(ctx, "RS_1/missing.md")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unparsable artifact is corrupt", func(t *testing.T) {
		require.NoError(t, s.SaveText(ctx, "RS_1/broken.json", "{not json"))
		var out sample
		err := s.LoadJSON(ctx, "RS_1/broken.json", &out)
		assert.ErrorIs(t, err, domain.ErrCorrupt)
	})

	t.Run("list filters by suffix and excludes nested children", func(t *testing.T) {
		require.NoError(t, s.SaveJSON(ctx, "RS_2/Zeta_report.json", sample{}))
		require.NoError(t, s.SaveJSON(ctx, "RS_2/Alpha_report.json", sample{}))
		require.NoError(t, s.SaveJSON(ctx, "RS_2/RS_2_meta.json", sample{}))
		require.NoError(t, s.SaveJSON(ctx, "RS_2/Alpha/q_report.json", sample{}))

		listed, err := s.List(ctx, "RS_2", "_report.json")
		require.NoError(t, err)
		assert.Equal(t, []string{"RS_2/Alpha_report.json", "RS_2/Zeta_report.json"}, listed)
	})

	t.Run("list treats underscore literally", func(t *testing.T) {
		require.NoError(t, s.SaveJSON(ctx, "RS_3/Xreport.json", sample{}))
		listed, err := s.List(ctx, "RS_3", "_report.json")
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("list of missing dir is empty", func(t *testing.T) {
		listed, err := s.List(ctx, "RS_404/Nothing", ".json")
		require.NoError(t, err)
		assert.NotNil(t, listed)
		assert.Empty(t, listed)
	})

	t.Run("rejects escaping paths", func(t *testing.T) {
		err := s.SaveText(ctx, "../outside.md", "x")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		err = s.SaveText(ctx, "/abs.md", "x")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
