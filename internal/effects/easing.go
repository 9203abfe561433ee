package effects

import (
	"fmt"
	"math"
)

var easings = map[string]func(float64) float64{
	"":               linear,
	"linear":         linear,
	"easeInQuad":     func(t float64) float64 { return t * t },
	"easeOutQuad":    func(t float64) float64 { return t * (2 - t) },
	"easeInOutCubic": easeInOutCubic,
	"easeInOutSine":  func(t float64) float64 { return -(math.Cos(math.Pi*t) - 1) / 2 },
}

// Easing returns the named easing curve. All curves map 0→0 and 1→1.
func Easing(name string) (func(float64) float64, error) {
	f, ok := easings[name]
	if !ok {
		return nil, fmt.Errorf("unknown easing %q", name)
	}
	return f, nil
}

func linear(t float64) float64 { return t }

// easeInOutCubic applies smooth easing function
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

// pow calculates x^n
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
