package routine

import "time"

// RecordCompletion advances the item's in-period counter for a completion at the given
// instant and returns the updated config. The input is not modified.
// A completion in a later period than the stored one resets the counter first.
// Inactive configs are returned unchanged: their progress is frozen.
func RecordCompletion(cfg CadenceConfig, at time.Time) CadenceConfig {
	out := cfg.Clone()
	if !out.Active {
		return out
	}

	bounds := PeriodBounds(&out, at)
	if out.CurrentPeriod == nil || out.CurrentPeriod.Start.Before(bounds.Start) {
		out.ProgressCurrent = 0
		out.CompletionsInPeriod = nil
		out.CurrentPeriod = &bounds
	}

	out.ProgressCurrent++
	out.CompletionsInPeriod = append(out.CompletionsInPeriod, Completion{Date: at, Value: out.ProgressCurrent})

	if out.LastCompletion != nil && !sameDate(out.LastCompletion.In(at.Location()), at) {
		prev := *out.LastCompletion
		out.PreviousCompletion = &prev
	}
	last := at
	out.LastCompletion = &last

	return out
}

// UndoCompletion reverts the completions recorded on at's calendar date within the
// active period and returns the updated config. The counter never drops below zero.
func UndoCompletion(cfg CadenceConfig, at time.Time) CadenceConfig {
	out := cfg.Clone()
	if !out.Active {
		return out
	}

	if out.CurrentPeriod != nil && !at.Before(out.CurrentPeriod.Start) && !at.After(out.CurrentPeriod.End) {
		kept := out.CompletionsInPeriod[:0:0]
		removed := 0
		for _, c := range out.CompletionsInPeriod {
			if sameDate(c.Date.In(at.Location()), at) {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		out.CompletionsInPeriod = kept
		out.ProgressCurrent = max(0, out.ProgressCurrent-removed)
		if len(out.CompletionsInPeriod) == 0 {
			out.CompletionsInPeriod = nil
		}
	}

	if out.LastCompletion == nil || !sameDate(out.LastCompletion.In(at.Location()), at) {
		return out
	}

	loc := at.Location()
	if n := len(out.CompletionsInPeriod); n > 0 {
		last := out.CompletionsInPeriod[n-1].Date
		out.LastCompletion = &last
		if prev := out.PreviousCompletion; prev != nil && !prev.In(loc).Before(dayStart(last.In(loc))) {
			out.PreviousCompletion = nil
		}
		return out
	}

	prev := out.PreviousCompletion
	if prev != nil && !prev.In(loc).Before(dayStart(at)) {
		prev = nil
	}
	out.LastCompletion = prev
	out.PreviousCompletion = nil
	return out
}
