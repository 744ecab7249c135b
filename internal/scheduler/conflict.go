package scheduler

import "sort"

// Booking is the minimal view of an active event needed for conflict detection.
type Booking struct {
	ID    string
	Title string
	Range TimeRange
}

// DetectConflicts returns every booking whose range overlaps candidate,
// ignoring the booking identified by excludeID. Results are ordered by start
// time, then id.
func DetectConflicts(existing []Booking, candidate TimeRange, excludeID string) []Booking {
	if len(existing) == 0 {
		return nil
	}

	var conflicts []Booking
	for _, booking := range existing {
		if excludeID != "" && booking.ID == excludeID {
			continue
		}
		if booking.Range.Overlaps(candidate) {
			conflicts = append(conflicts, booking)
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].Range.Start.Equal(conflicts[j].Range.Start) {
			return conflicts[i].ID < conflicts[j].ID
		}
		return conflicts[i].Range.Start.Before(conflicts[j].Range.Start)
	})
	return conflicts
}
