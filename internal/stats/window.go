package stats

import (
	"time"
)

type Preset string

const (
	PresetAll    Preset = "all"
	PresetYear   Preset = "year"
	PresetMonth  Preset = "month"
	PresetCustom Preset = "custom"
)

const dateLayout = "2006-01-02"

// Window is an inclusive range of calendar days. A nil bound is open.
type Window struct {
	Preset Preset     `json:"preset"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

// ParseWindow reads a preset and the optional custom bounds. Unknown presets
// and unparsable dates fall back to an open bound; reversed bounds are
// swapped; a custom window without any bound is "all".
func ParseWindow(preset, from, to string, now time.Time) Window {
	loc := now.Location()
	switch Preset(preset) {
	case PresetYear:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return Window{Preset: PresetYear, From: &start}

	case PresetMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return Window{Preset: PresetMonth, From: &start}

	case PresetCustom:
		w := Window{Preset: PresetCustom, From: parseDay(from, loc), To: parseDay(to, loc)}
		if w.From != nil && w.To != nil && w.To.Before(*w.From) {
			w.From, w.To = w.To, w.From
		}
		if w.From == nil && w.To == nil {
			return Window{Preset: PresetAll}
		}
		return w
	}
	return Window{Preset: PresetAll}
}

func parseDay(s string, loc *time.Location) *time.Time {
	if s == "" {
		return nil
	}
	day, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return nil
	}
	return &day
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && !t.Before(w.To.AddDate(0, 0, 1)) {
		return false
	}
	return true
}
