package record

import "math"

// MixInto adds src into dst sample by sample, clamping at the int16
// limits so overlapping speakers saturate instead of wrapping into
// noise. Only the overlapping prefix is mixed.
func MixInto(dst, src []int16) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		v := int32(dst[i]) + int32(src[i])
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		dst[i] = int16(v)
	}
}
