package slots

import (
	"sort"
	"time"

	"cowork/internal/engine"
	"cowork/internal/model"
)

// Slot is one step of the day grid.
type Slot struct {
	Window    model.Slot
	StartTime time.Time
	EndTime   time.Time
	Available bool
}

// SlotInfo is the wire form of a grid step.
type SlotInfo struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "11:00"
	Available bool   `json:"available"`
}

// Generator builds availability grids.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator. A nil clock means time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Grid splits the opening hours of date into step-long slots. A slot is available when it
// does not conflict with any of existing and has not started yet.
func (g *Generator) Grid(date time.Time, hours model.OpeningHours, step time.Duration, existing []model.ReservationRecord) []Slot {
	stepMin := model.Clock(step / time.Minute)
	if stepMin <= 0 {
		stepMin = 60
	}
	if hours.Close <= hours.Open {
		return nil
	}

	day := model.DateOf(date)
	now := g.now()

	var out []Slot
	for cursor := hours.Open; cursor+stepMin <= hours.Close; cursor += stepMin {
		window := model.BoundedSlot(cursor, cursor+stepMin)
		start := cursor.On(day)

		booked := engine.HasConflict(model.TimeWindow{Date: day, Slot: window}, existing)

		out = append(out, Slot{
			Window:    window,
			StartTime: start,
			EndTime:   window.End.On(day),
			Available: !booked && !start.Before(now),
		})
	}
	return out
}

// ToSlotInfo converts slots for the API.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:     s.Window.Start.String(),
			End:       s.Window.End.String(),
			Available: s.Available,
		}
	}
	return result
}

// AvailableOnly filters out booked and past slots.
func AvailableOnly(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// FindConsecutive groups available slots into runs without gaps.
func FindConsecutive(slots []Slot) [][]Slot {
	available := AvailableOnly(slots)
	if len(available) == 0 {
		return nil
	}

	sort.Slice(available, func(i, j int) bool {
		return available[i].Window.Start < available[j].Window.Start
	})

	var groups [][]Slot
	current := []Slot{available[0]}
	for _, s := range available[1:] {
		if s.Window.Start == current[len(current)-1].Window.End {
			current = append(current, s)
			continue
		}
		groups = append(groups, current)
		current = []Slot{s}
	}
	return append(groups, current)
}

// Merge returns the bounded window covering a run of consecutive slots.
func Merge(run []Slot) (model.Slot, bool) {
	if len(run) == 0 {
		return model.Slot{}, false
	}
	for i := 1; i < len(run); i++ {
		if run[i].Window.Start != run[i-1].Window.End {
			return model.Slot{}, false
		}
	}
	return model.BoundedSlot(run[0].Window.Start, run[len(run)-1].Window.End), true
}

// DurationOptions lists the bookable lengths in minutes starting at start.
func DurationOptions(slots []Slot, start model.Clock) []int {
	startIdx := -1
	for i, s := range slots {
		if s.Window.Start == start && s.Available {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil
	}

	var options []int
	for i := startIdx; i < len(slots); i++ {
		if !slots[i].Available {
			break
		}
		if i > startIdx && slots[i].Window.Start != slots[i-1].Window.End {
			break
		}
		options = append(options, int(slots[i].Window.End-start))
	}
	return options
}
