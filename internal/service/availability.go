package service

import (
	"sort"

	"github.com/noah-isme/study-match-api/internal/models"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
)

// unionWindows merges overlapping and adjacent windows per day into minimal
// disjoint windows. The input is not modified; an empty input yields nil.
func unionWindows(windows []models.AvailabilityWindow) []models.AvailabilityWindow {
	if len(windows) == 0 {
		return nil
	}

	sorted := make([]models.AvailabilityWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		if sorted[i].StartMinute != sorted[j].StartMinute {
			return sorted[i].StartMinute < sorted[j].StartMinute
		}
		return sorted[i].EndMinute < sorted[j].EndMinute
	})

	merged := make([]models.AvailabilityWindow, 0, len(sorted))
	current := sorted[0]
	for _, window := range sorted[1:] {
		// Adjacent windows (end == start) merge as well.
		if window.Day == current.Day && window.StartMinute <= current.EndMinute {
			if window.EndMinute > current.EndMinute {
				current.EndMinute = window.EndMinute
			}
			continue
		}
		merged = append(merged, current)
		current = window
	}
	merged = append(merged, current)
	return merged
}

// intersectWindows computes the per-day interval intersection of two window
// sets. Inputs are unioned first so callers may pass raw declarations.
func intersectWindows(a, b []models.AvailabilityWindow) []models.AvailabilityWindow {
	ua := unionWindows(a)
	ub := unionWindows(b)
	if len(ua) == 0 || len(ub) == 0 {
		return nil
	}

	var result []models.AvailabilityWindow
	i, j := 0, 0
	for i < len(ua) && j < len(ub) {
		x, y := ua[i], ub[j]
		if x.Day != y.Day {
			if x.Day < y.Day {
				i++
			} else {
				j++
			}
			continue
		}
		start := x.StartMinute
		if y.StartMinute > start {
			start = y.StartMinute
		}
		end := x.EndMinute
		if y.EndMinute < end {
			end = y.EndMinute
		}
		if start < end {
			result = append(result, models.AvailabilityWindow{Day: x.Day, StartMinute: start, EndMinute: end})
		}
		if x.EndMinute <= y.EndMinute {
			i++
		} else {
			j++
		}
	}
	return result
}

// intersectAllWindows folds intersectWindows across every member's windows.
// Zero members is an input error; one member yields that member's union.
func intersectAllWindows(sets [][]models.AvailabilityWindow) ([]models.AvailabilityWindow, error) {
	if len(sets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "intersection requires at least one member")
	}
	acc := unionWindows(sets[0])
	for _, set := range sets[1:] {
		if len(acc) == 0 {
			return nil, nil
		}
		acc = intersectWindows(acc, set)
	}
	return acc, nil
}

// overlapMinutes totals the shared time between two window sets.
func overlapMinutes(a, b []models.AvailabilityWindow) int {
	total := 0
	for _, window := range intersectWindows(a, b) {
		total += window.EndMinute - window.StartMinute
	}
	return total
}

// pickMeetingWindow selects the meeting slot from a non-empty intersection:
// the longest window, ties broken by earliest day then start.
func pickMeetingWindow(windows []models.AvailabilityWindow) *models.AvailabilityWindow {
	if len(windows) == 0 {
		return nil
	}
	best := windows[0]
	for _, window := range windows[1:] {
		length := window.EndMinute - window.StartMinute
		bestLength := best.EndMinute - best.StartMinute
		if length > bestLength {
			best = window
			continue
		}
		if length == bestLength {
			if window.Day < best.Day || (window.Day == best.Day && window.StartMinute < best.StartMinute) {
				best = window
			}
		}
	}
	chosen := best
	return &chosen
}
