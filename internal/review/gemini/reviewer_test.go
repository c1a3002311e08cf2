package gemini

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{APIKey: "  "})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestNewDefaultsModel(t *testing.T) {
	t.Parallel()

	r, err := New(context.Background(), Config{APIKey: "test-key"})
	require.NoError(t, err)
	require.Equal(t, "gemini-2.0-flash", r.model)
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	item := harvest.WorkItem{SellerID: "tienda-sur", URLID: "MLU123"}
	prompt := buildPrompt(item, `{"currency":"UYU"}`)

	require.Contains(t, prompt, "tienda-sur/MLU123")
	require.Contains(t, prompt, `{"currency":"UYU"}`)
	require.Contains(t, prompt, "Return ONLY a JSON object")
	require.False(t, strings.HasPrefix(prompt, "\n"))
}

func TestVerdictSchemaRequiresAllKeys(t *testing.T) {
	t.Parallel()

	require.ElementsMatch(t, []string{"acceptable", "issues", "confidence"}, verdictSchema.Required)
	for _, key := range verdictSchema.Required {
		require.Contains(t, verdictSchema.Properties, key)
	}
}
