package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sierge-ai/activity-engine/internal/types"
)

func TestNormalizeActivity(t *testing.T) {
	t.Run("N/A sentinels become empty", func(t *testing.T) {
		a := NormalizeActivity(types.Activity{
			Name:        "Cafe X",
			Cost:        "N/A",
			Website:     "n/a",
			Description: " A cozy cafe ",
		})
		assert.Empty(t, a.Cost)
		assert.Empty(t, a.Website)
		assert.Equal(t, "A cozy cafe", a.Description)
	})

	t.Run("category is clamped to the enumeration", func(t *testing.T) {
		a := NormalizeActivity(types.Activity{Name: "Cafe X", Category: "Brunch Spots"})
		assert.Equal(t, types.CategoryOther, a.Category)

		b := NormalizeActivity(types.Activity{Name: "Cafe X", Category: types.CategoryFoodDrink})
		assert.Equal(t, types.CategoryFoodDrink, b.Category)
	})

	t.Run("accessibility features are cleaned", func(t *testing.T) {
		a := NormalizeActivity(types.Activity{
			Name:                  "Cafe X",
			AccessibilityFeatures: []string{" wheelchair ramp ", "N/A", ""},
		})
		assert.Equal(t, []string{"wheelchair ramp"}, a.AccessibilityFeatures)

		b := NormalizeActivity(types.Activity{
			Name:                  "Cafe X",
			AccessibilityFeatures: []string{"N/A"},
		})
		assert.Nil(t, b.AccessibilityFeatures)
	})
}

func TestNormalizeBatch(t *testing.T) {
	t.Run("organic results project title and snippet", func(t *testing.T) {
		batch := types.RawProviderBatch{
			Source: types.SourceGoogleOrganic,
			Results: []json.RawMessage{
				json.RawMessage(`{"title":"Cafe X","snippet":"Best coffee downtown","link":"https://cafex.example.com"}`),
			},
		}
		got := NormalizeBatch(batch)
		require.Len(t, got, 1)
		assert.Equal(t, "Cafe X", got[0].Name)
		assert.Equal(t, "Best coffee downtown", got[0].Description)
		assert.Equal(t, "https://cafex.example.com", got[0].Website)
		assert.Equal(t, types.SourceGoogleOrganic, got[0].DataSource)
		assert.Equal(t, types.CategoryOther, got[0].Category)
	})

	t.Run("event results join address lines and default the category", func(t *testing.T) {
		batch := types.RawProviderBatch{
			Source: types.SourceGoogleEvents,
			Results: []json.RawMessage{
				json.RawMessage(`{
					"title":"Deep Ellum Arts Festival",
					"date":{"start_date":"Apr 4","when":"Fri, Apr 4 - Sun, Apr 6"},
					"address":["Main St","Dallas, TX"],
					"description":"Annual arts festival",
					"ticket_info":[{"link":"https://tickets.example.com"}]
				}`),
			},
		}
		got := NormalizeBatch(batch)
		require.Len(t, got, 1)
		assert.Equal(t, types.CategoryCommunityEvents, got[0].Category)
		assert.Equal(t, "Main St, Dallas, TX", got[0].Location)
		assert.Equal(t, "Apr 4", got[0].StartTime)
		assert.Equal(t, "https://tickets.example.com", got[0].BookingInfo)
	})

	t.Run("yelp results take the first category", func(t *testing.T) {
		batch := types.RawProviderBatch{
			Source: types.SourceYelp,
			Results: []json.RawMessage{
				json.RawMessage(`{
					"title":"Cafe X",
					"categories":[{"title":"Food & Drink Experiences"},{"title":"Coffee"}],
					"price":"$$",
					"neighborhoods":"Deep Ellum"
				}`),
			},
		}
		got := NormalizeBatch(batch)
		require.Len(t, got, 1)
		assert.Equal(t, types.CategoryFoodDrink, got[0].Category)
		assert.Equal(t, "$$", got[0].Cost)
		assert.Equal(t, "Deep Ellum", got[0].Location)
	})

	t.Run("unrecognized sources decode canonical records", func(t *testing.T) {
		batch := types.RawProviderBatch{
			Source: types.SourceWebPage,
			Results: []json.RawMessage{
				json.RawMessage(`{"name":"Cafe X","category":"Food & Drink Experiences","cost":"N/A"}`),
			},
		}
		got := NormalizeBatch(batch)
		require.Len(t, got, 1)
		assert.Equal(t, "Cafe X", got[0].Name)
		assert.Equal(t, types.CategoryFoodDrink, got[0].Category)
		assert.Empty(t, got[0].Cost)
	})

	t.Run("nameless and malformed entries are dropped", func(t *testing.T) {
		batch := types.RawProviderBatch{
			Source: types.SourceGoogleOrganic,
			Results: []json.RawMessage{
				json.RawMessage(`{"snippet":"no title here"}`),
				json.RawMessage(`not json at all`),
				json.RawMessage(`{"title":"Cafe X"}`),
			},
		}
		got := NormalizeBatch(batch)
		require.Len(t, got, 1)
		assert.Equal(t, "Cafe X", got[0].Name)
	})
}
