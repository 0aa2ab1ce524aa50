package handler

import "strings"

const (
	g6ScalingV1 = 34.0

	g6OffsetV2  = 1151500000.0
	g6DivisorV2 = 110.0
)

// G6Scaling converts raw values of the second transmitter generation. The
// factor depends on the firmware major version; unknown firmware is left
// unscaled.
func G6Scaling(firmware string, value float64) float64 {
	switch {
	case strings.HasPrefix(firmware, "1."):
		return value * g6ScalingV1
	case strings.HasPrefix(firmware, "2."):
		return (value - g6OffsetV2) / g6DivisorV2
	default:
		return value
	}
}
