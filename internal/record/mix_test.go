package record_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/record"
)

func TestMixInto(t *testing.T) {
	t.Run("adds sample by sample", func(t *testing.T) {
		dst := []int16{100, -200, 300}
		record.MixInto(dst, []int16{1, 2, 3})
		assert.Equal(t, []int16{101, -198, 303}, dst)
	})

	t.Run("saturates instead of wrapping", func(t *testing.T) {
		dst := []int16{math.MaxInt16, math.MinInt16}
		record.MixInto(dst, []int16{1000, -1000})
		assert.Equal(t, int16(math.MaxInt16), dst[0])
		assert.Equal(t, int16(math.MinInt16), dst[1])
	})

	t.Run("shorter source leaves the tail untouched", func(t *testing.T) {
		dst := []int16{1, 2, 3, 4}
		record.MixInto(dst, []int16{10, 10})
		assert.Equal(t, []int16{11, 12, 3, 4}, dst)
	})

	t.Run("shorter destination ignores extra source samples", func(t *testing.T) {
		dst := []int16{1}
		record.MixInto(dst, []int16{10, 20, 30})
		assert.Equal(t, []int16{11}, dst)
	})

	t.Run("empty slices are a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			record.MixInto(nil, []int16{1})
			record.MixInto([]int16{1}, nil)
		})
	})
}
