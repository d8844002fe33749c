package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	t.Run("known category passes through", func(t *testing.T) {
		assert.Equal(t, CategoryFoodDrink, ParseCategory("Food & Drink Experiences"))
	})

	t.Run("whitespace is trimmed", func(t *testing.T) {
		assert.Equal(t, CategoryShopping, ParseCategory("  Shopping "))
	})

	t.Run("unknown value clamps to Other", func(t *testing.T) {
		assert.Equal(t, CategoryOther, ParseCategory("Nightlife"))
		assert.Equal(t, CategoryOther, ParseCategory(""))
	})
}

func TestIdentityKey(t *testing.T) {
	t.Run("deterministic and case-insensitive", func(t *testing.T) {
		a := Activity{Name: "Cafe X", FullAddress: "123 Main St, Dallas, TX"}
		b := Activity{Name: "cafe x", FullAddress: "123 MAIN ST, DALLAS, TX"}

		keyA, okA := a.IdentityKey()
		keyB, okB := b.IdentityKey()
		require.True(t, okA)
		require.True(t, okB)
		assert.Equal(t, keyA, keyB)
		assert.NotEqual(t, uuid.Nil, keyA)
	})

	t.Run("different address means different identity", func(t *testing.T) {
		a := Activity{Name: "Cafe X", FullAddress: "123 Main St"}
		b := Activity{Name: "Cafe X", FullAddress: "456 Elm St"}

		keyA, _ := a.IdentityKey()
		keyB, _ := b.IdentityKey()
		assert.NotEqual(t, keyA, keyB)
	})

	t.Run("no address means no deterministic identity", func(t *testing.T) {
		a := Activity{Name: "Cafe X"}
		_, ok := a.IdentityKey()
		assert.False(t, ok)

		b := Activity{FullAddress: "123 Main St"}
		_, ok = b.IdentityKey()
		assert.False(t, ok)
	})
}

func TestMergeFrom(t *testing.T) {
	existing := &Activity{
		Name:        "Cafe X",
		Category:    CategoryFoodDrink,
		FullAddress: "123 Main St, Dallas, TX",
		Description: "A cozy cafe",
		Website:     "https://cafex.example.com",
		Cost:        "$$",
		Coordinates: &Coordinates{Lat: 32.77, Lon: -96.79},
		DataSource:  "yelp_search",
	}

	t.Run("empty incoming fields are backfilled", func(t *testing.T) {
		incoming := Activity{
			Name:        "Cafe X",
			FullAddress: "123 Main St, Dallas, TX",
			Cost:        "$",
		}
		incoming.MergeFrom(existing)

		assert.Equal(t, "A cozy cafe", incoming.Description)
		assert.Equal(t, "https://cafex.example.com", incoming.Website)
		assert.Equal(t, "yelp_search", incoming.DataSource)
		require.NotNil(t, incoming.Coordinates)
		assert.Equal(t, 32.77, incoming.Coordinates.Lat)
	})

	t.Run("present incoming values win", func(t *testing.T) {
		incoming := Activity{
			Name:        "Cafe X",
			FullAddress: "123 Main St, Dallas, TX",
			Description: "Fresh description",
			Cost:        "$",
		}
		incoming.MergeFrom(existing)

		assert.Equal(t, "Fresh description", incoming.Description)
		assert.Equal(t, "$", incoming.Cost)
	})

	t.Run("Other category is upgraded from the stored record", func(t *testing.T) {
		incoming := Activity{Name: "Cafe X", Category: CategoryOther}
		incoming.MergeFrom(existing)
		assert.Equal(t, CategoryFoodDrink, incoming.Category)
	})

	t.Run("nil existing is a no-op", func(t *testing.T) {
		incoming := Activity{Name: "Cafe X"}
		incoming.MergeFrom(nil)
		assert.Equal(t, "Cafe X", incoming.Name)
	})
}

func TestPipelineContextCollection(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"city with state", "Dallas, Texas, United States", "dallas_texas_united_states"},
		{"casing and spacing collapse", "  DALLAS   tx ", "dallas_tx"},
		{"equivalent inputs share a collection", "dallas tx", "dallas_tx"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pctx := PipelineContext{BaseLocation: tt.in}
			assert.Equal(t, tt.want, pctx.Collection())
		})
	}
}
