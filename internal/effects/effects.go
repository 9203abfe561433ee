package effects

import (
	"fmt"
	"image"
	"sort"

	"github.com/ivlev/vconcat/internal/config"
)

// Effect blends two equally sized frames into dst. progress runs from 0
// (only from visible) to 1 (only to visible) and is already eased.
type Effect interface {
	Blend(dst, from, to *image.RGBA, progress float64, spec config.TransitionSpec)
}

type Func func(dst, from, to *image.RGBA, progress float64, spec config.TransitionSpec)

func (f Func) Blend(dst, from, to *image.RGBA, progress float64, spec config.TransitionSpec) {
	f(dst, from, to, progress, spec)
}

var registry = map[string]Effect{
	"none":        Func(cut),
	"fade":        Func(fade),
	"fadeblack":   Func(fadeThrough(0)),
	"fadewhite":   Func(fadeThrough(255)),
	"wipeleft":    Func(wipe(axisX, true)),
	"wiperight":   Func(wipe(axisX, false)),
	"wipeup":      Func(wipe(axisY, true)),
	"wipedown":    Func(wipe(axisY, false)),
	"slideleft":   Func(slide(axisX, true)),
	"slideright":  Func(slide(axisX, false)),
	"slideup":     Func(slide(axisY, true)),
	"slidedown":   Func(slide(axisY, false)),
	"circleopen":  Func(circle(true)),
	"circleclose": Func(circle(false)),
	"dissolve":    Func(dissolve),
	"pixelize":    Func(pixelize),
	"squeeze":     Func(squeeze),
}

// Lookup returns the registered effect for a transition name.
func Lookup(name string) (Effect, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown transition %q", name)
	}
	return e, nil
}

// Check reports an unknown transition or easing name in spec. Empty names
// are allowed; the planner fills them with the built-in defaults.
func Check(spec config.TransitionSpec) error {
	if spec.Name != "" {
		if _, err := Lookup(spec.Name); err != nil {
			return err
		}
	}
	_, err := Easing(spec.Easing)
	return err
}

// Names lists the registered transitions in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render looks up spec's effect and easing and blends one frame at local
// time t.
func Render(dst, from, to *image.RGBA, t float64, spec config.TransitionSpec) error {
	e, err := Lookup(spec.Name)
	if err != nil {
		return err
	}
	ease, err := Easing(spec.Easing)
	if err != nil {
		return err
	}
	e.Blend(dst, from, to, ease(clamp01(t)), spec)
	return nil
}
