package normalizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatssosanya/kimovil-scraper/internal/llm"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

var s24Options = []models.AutocompleteOption{
	{Name: "Samsung Galaxy S24", Slug: "galaxy-s24"},
	{Name: "Samsung Galaxy S24 Ultra", Slug: "galaxy-s24-ultra"},
	{Name: "Samsung Galaxy S24+", Slug: "galaxy-s24-plus"},
}

func TestNormalizer_PickSlug(t *testing.T) {
	ctx := context.Background()

	t.Run("single option skips the model", func(t *testing.T) {
		stub := llm.NewStubGenerator("galaxy-s24-ultra", nil)
		n := New(stub, Options{}, testLogger())

		slug, err := n.PickSlug(ctx, "Galaxy S24", s24Options[:1])
		require.NoError(t, err)
		assert.Equal(t, "galaxy-s24", slug)
		assert.Empty(t, stub.Calls())
	})

	t.Run("no options", func(t *testing.T) {
		_, err := New(llm.NewStubGenerator("", nil), Options{}, testLogger()).PickSlug(ctx, "x", nil)
		assert.ErrorIs(t, err, ErrNoOptions)
	})

	replies := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare", "galaxy-s24-ultra", "galaxy-s24-ultra"},
		{"quoted with newline", "\"galaxy-s24-plus\"\n", "galaxy-s24-plus"},
		{"backticks", "`galaxy-s24`", "galaxy-s24"},
	}
	for _, tt := range replies {
		t.Run(tt.name, func(t *testing.T) {
			stub := llm.NewStubGenerator(tt.reply, nil)
			slug, err := New(stub, Options{}, testLogger()).PickSlug(ctx, "Samsung S24", s24Options)
			require.NoError(t, err)
			assert.Equal(t, tt.want, slug)

			calls := stub.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, llm.PurposePickSlug, calls[0].Purpose)
			assert.Equal(t, float32(0), calls[0].Temperature)
			assert.Nil(t, calls[0].Schema)
			for _, opt := range s24Options {
				assert.Contains(t, calls[0].Prompt, opt.Slug)
			}
		})
	}

	outside := []string{"galaxy-s24-fe", "Samsung Galaxy S24 Ultra", "GALAXY-S24", "The answer is galaxy-s24", ""}
	for _, reply := range outside {
		t.Run("outside option set: "+reply, func(t *testing.T) {
			_, err := New(llm.NewStubGenerator(reply, nil), Options{}, testLogger()).PickSlug(ctx, "Samsung S24", s24Options)

			var ambiguous *models.AmbiguousMatchError
			require.ErrorAs(t, err, &ambiguous)
			assert.Equal(t, "Samsung S24", ambiguous.Query)
		})
	}
}
