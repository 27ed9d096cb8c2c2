package slots

import (
	"sort"
	"time"

	"cowork/internal/model"
)

// Event is a reservation rendered for a calendar view.
type Event struct {
	ReservationID int64        `json:"reservation_id"`
	Title         string       `json:"title"`
	Start         time.Time    `json:"start"`
	End           time.Time    `json:"end"`
	AllDay        bool         `json:"all_day"`
	Status        model.Status `json:"status"`
}

// Events maps reservations to calendar events ordered by start. Cancelled reservations and
// reservations with unreadable slots are left out. Full-day reservations span the opening hours.
func Events(reservations []model.Reservation, hours model.OpeningHours) []Event {
	events := make([]Event, 0, len(reservations))
	for i := range reservations {
		r := &reservations[i]
		if !r.Status.Active() || !r.Slot.Valid() {
			continue
		}

		start, end := r.Slot.Start, r.Slot.End
		if r.Slot.FullDay {
			start, end = hours.Open, hours.Close
		}

		events = append(events, Event{
			ReservationID: r.ID,
			Title:         title(r),
			Start:         start.On(r.Date),
			End:           end.On(r.Date),
			AllDay:        r.Slot.FullDay,
			Status:        r.Status,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events
}

func title(r *model.Reservation) string {
	name := r.Extras.Contact.Name
	if name == "" {
		name = "Reserved"
	}
	return name + " (" + r.Slot.String() + ")"
}
