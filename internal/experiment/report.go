package experiment

import (
	"sort"

	"lamed/internal/core"
)

// Cell addresses one counter of an experiment.
type Cell struct {
	Event   string
	Variant string
}

// Tally holds counter values by cell. Absent cells count as zero.
type Tally map[Cell]int64

// Variants returns every variant seen in t, sorted.
func (t Tally) Variants() []string {
	seen := make(map[string]struct{})
	for c := range t {
		seen[c.Variant] = struct{}{}
	}
	return sortedKeys(seen)
}

// Goals returns every event type in t other than participate, sorted.
func (t Tally) Goals() []string {
	seen := make(map[string]struct{})
	for c := range t {
		if c.Event != core.ParticipateEvent {
			seen[c.Event] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Reports shapes t into one report per goal, each listing every variant in t.
// A variant that never recorded a participate event still appears, with zero
// trials.
func Reports(t Tally) []core.GoalReport {
	variants := t.Variants()
	goals := t.Goals()

	reports := make([]core.GoalReport, 0, len(goals))
	for _, goal := range goals {
		results := make([]core.VariantResult, 0, len(variants))
		for _, v := range variants {
			results = append(results, core.VariantResult{
				Label:     v,
				Successes: t[Cell{Event: goal, Variant: v}],
				Trials:    t[Cell{Event: core.ParticipateEvent, Variant: v}],
			})
		}
		reports = append(reports, core.GoalReport{Goal: goal, Results: results})
	}
	return reports
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
