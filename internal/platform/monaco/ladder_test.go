package monaco

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPriceLadder(t *testing.T) {
	ladder := DefaultPriceLadder()

	assert.Len(t, ladder, 350)
	assert.Equal(t, 1.01, ladder[0])
	assert.Equal(t, 1000.0, ladder[len(ladder)-1])
	assert.IsIncreasing(t, ladder)

	assert.Contains(t, ladder, 1.99)
	assert.Contains(t, ladder, 2.0)
	assert.Contains(t, ladder, 2.98)
	assert.Contains(t, ladder, 4.1)
	assert.Contains(t, ladder, 990.0)
	assert.NotContains(t, ladder, 2.01)
}
