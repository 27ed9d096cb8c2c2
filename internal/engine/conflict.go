// Package engine decides slot availability and prices reservations.
//
// Everything here is a pure function over its arguments: no I/O, no shared
// state, safe to call from any number of goroutines. Callers fetch the
// existing reservations and the catalog themselves and must still commit
// the reservation atomically; a clear verdict from HasConflict is only as
// fresh as the records it was given.
package engine

import (
	"cowork/internal/model"
)

// HasConflict reports whether the requested window overlaps any active
// reservation in existing. Records are expected to belong to the same space
// and date as the request.
//
// Cancelled records never conflict. A full-day request conflicts with any
// active record. A bounded request conflicts with a full-day record or with
// a bounded record sharing at least one minute. Records with an unparseable
// slot are skipped.
func HasConflict(request model.TimeWindow, existing []model.ReservationRecord) bool {
	for i := range existing {
		if conflicts(request, &existing[i]) {
			return true
		}
	}
	return false
}

// Conflicts returns the records that block the requested window.
func Conflicts(request model.TimeWindow, existing []model.ReservationRecord) []model.ReservationRecord {
	var out []model.ReservationRecord
	for i := range existing {
		if conflicts(request, &existing[i]) {
			out = append(out, existing[i])
		}
	}
	return out
}

func conflicts(request model.TimeWindow, rec *model.ReservationRecord) bool {
	if !rec.Status.Active() {
		return false
	}
	if request.AllDay() {
		return true
	}
	return request.Slot.Overlaps(rec.Slot)
}
