package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchBudget(t *testing.T) {
	t.Run("spends until exhausted", func(t *testing.T) {
		b := NewSearchBudget(3, 1)
		assert.True(t, b.Spend())
		assert.True(t, b.Spend())
		assert.True(t, b.Spend())
		assert.False(t, b.Spend())
		assert.Equal(t, 0, b.Remaining())
	})

	t.Run("denied spend consumes nothing", func(t *testing.T) {
		b := NewSearchBudget(3, 2)
		assert.True(t, b.Spend())
		assert.False(t, b.Spend())
		assert.Equal(t, 1, b.Remaining())
	})

	t.Run("reset restores the full budget", func(t *testing.T) {
		b := NewSearchBudget(2, 1)
		b.Spend()
		b.Spend()
		b.Reset()
		assert.Equal(t, 2, b.Remaining())
	})

	t.Run("concurrent spends never exceed the limit", func(t *testing.T) {
		b := NewSearchBudget(10, 1)
		var wg sync.WaitGroup
		granted := make(chan struct{}, 100)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if b.Spend() {
					granted <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(granted)
		assert.Len(t, granted, 10)
		assert.Equal(t, 0, b.Remaining())
	})
}
