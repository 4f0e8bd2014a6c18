package routine

import "time"

// Ratios holds the completion share of due items, overall and per section.
type Ratios struct {
	Overall   float64             `json:"overall"`
	BySection map[Section]float64 `json:"bySection"`
}

// ComputeRatios scores a routine day. Only items due on that day count: an item
// that is inactive or not due adds to neither numerator nor denominator.
// dayInLoc is the routine's calendar date in the user's location.
func ComputeRatios(sections Sections, configs ConfigSet, dayInLoc time.Time) Ratios {
	out := Ratios{BySection: make(map[Section]float64, len(AllSections))}
	var totalDue, totalDone int

	for _, section := range AllSections {
		due, done := 0, 0
		for itemID, completed := range sections[section] {
			if !DueOn(configs.Lookup(section, itemID), dayInLoc) {
				continue
			}
			due++
			if completed {
				done++
			}
		}
		out.BySection[section] = ratio(done, due)
		totalDue += due
		totalDone += done
	}

	out.Overall = ratio(totalDone, totalDue)
	return out
}

func ratio(done, due int) float64 {
	if due == 0 {
		return 0
	}
	return float64(done) / float64(due)
}
