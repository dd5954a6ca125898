// Package scheduler holds the pure queue algorithms: slot shifting, retry
// bookkeeping, the status state machine and slot allocation.
package scheduler

import (
	"fmt"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
)

// SlotUpdate moves one queue item to a new slot.
type SlotUpdate struct {
	ItemID       int64
	ScheduledFor time.Time
}

// ShiftPlan is the outcome of forcing one pending item out of turn.
type ShiftPlan struct {
	Forced    *models.QueueItem
	Updates   []SlotUpdate
	Shifted   int
	Discarded time.Time
}

// ShiftSlots plans a force-post of pending[index]. pending must be ordered by
// ScheduledFor ascending. Every later item takes the slot its predecessor held
// before the shift and the last slot is discarded, so the remaining items keep
// their spacing and the queue loses exactly one slot.
func ShiftSlots(pending []*models.QueueItem, index int) (*ShiftPlan, error) {
	if index < 0 || index >= len(pending) {
		return nil, apperrors.New(apperrors.ErrNotFound, "shift slots", fmt.Errorf("index %d out of range [0,%d)", index, len(pending)))
	}

	slots := make([]time.Time, len(pending))
	for i, item := range pending {
		slots[i] = item.ScheduledFor
	}

	plan := &ShiftPlan{
		Forced:    pending[index],
		Discarded: slots[len(slots)-1],
	}
	for i := index + 1; i < len(pending); i++ {
		plan.Updates = append(plan.Updates, SlotUpdate{ItemID: pending[i].ID, ScheduledFor: slots[i-1]})
	}
	plan.Shifted = len(plan.Updates)
	return plan, nil
}

// Apply writes the planned slots onto the items it was built from.
func (p *ShiftPlan) Apply(pending []*models.QueueItem) {
	byID := make(map[int64]time.Time, len(p.Updates))
	for _, u := range p.Updates {
		byID[u.ItemID] = u.ScheduledFor
	}
	for _, item := range pending {
		if t, ok := byID[item.ID]; ok {
			item.ScheduledFor = t
		}
	}
}

// IndexOf returns the position of itemID in pending, or -1.
func IndexOf(pending []*models.QueueItem, itemID int64) int {
	for i, item := range pending {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// OverdueShift bumps each overdue item forward by delta. Calling it twice
// bumps twice; callers gate how often it runs.
func OverdueShift(items []*models.QueueItem, delta time.Duration) []SlotUpdate {
	updates := make([]SlotUpdate, 0, len(items))
	for _, item := range items {
		updates = append(updates, SlotUpdate{ItemID: item.ID, ScheduledFor: item.ScheduledFor.Add(delta)})
	}
	return updates
}

// DailySlots spreads settings.PostsPerDay slots evenly over the posting hours
// of day, in day's location.
func DailySlots(day time.Time, settings *models.TenantSettings) []time.Time {
	n := settings.PostsPerDay
	if n <= 0 {
		return nil
	}
	start, end := settings.PostingHourStart, settings.PostingHourEnd
	if end <= start {
		start, end = 0, 24
	}

	base := time.Date(day.Year(), day.Month(), day.Day(), start, 0, 0, 0, day.Location())
	step := time.Duration(end-start) * time.Hour / time.Duration(n)

	slots := make([]time.Time, n)
	for i := range slots {
		slots[i] = base.Add(time.Duration(i) * step)
	}
	return slots
}

// NextSlots returns the first n daily slots strictly after from.
func NextSlots(from time.Time, settings *models.TenantSettings, n int) []time.Time {
	if n <= 0 || settings.PostsPerDay <= 0 {
		return nil
	}

	out := make([]time.Time, 0, n)
	day := from
	for len(out) < n {
		for _, slot := range DailySlots(day, settings) {
			if slot.After(from) {
				out = append(out, slot)
				if len(out) == n {
					break
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}
