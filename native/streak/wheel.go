package streak

import (
	"fmt"
	"math/rand/v2"
)

// TBDSlot is handed out when no wheel time can be assigned.
const TBDSlot = "TBD — contact admin"

const slotStepMinutes = 10

var (
	// The base window runs 7:00 PM to 8:50 PM.
	baseWheelHours = []int{19, 20}
	// Extension blocks are opened in order when the base window is full.
	wheelExtensions = [][]int{{21}, {18, 22}}
)

// SlotAllocator assigns wheel spin times to the milestone winners of a run.
// Implementations return exactly count slots; slots other than TBDSlot must
// be unique within one call.
type SlotAllocator interface {
	Allocate(count int) ([]string, error)
}

// WheelAllocator draws slots from the evening pool at random.
type WheelAllocator struct {
	rng *rand.Rand
}

// NewWheelAllocator returns an allocator using rng, or the shared source
// when rng is nil.
func NewWheelAllocator(rng *rand.Rand) *WheelAllocator {
	return &WheelAllocator{rng: rng}
}

// WheelPool returns the slots available for count winners: the base window,
// extended block by block until it is large enough or every block is open.
func WheelPool(count int) []string {
	pool := hourSlots(baseWheelHours)
	for _, block := range wheelExtensions {
		if count <= len(pool) {
			break
		}
		pool = append(pool, hourSlots(block)...)
	}
	return pool
}

// Allocate assigns count unique slots. Winners beyond the largest pool get
// TBDSlot and ErrAllocatorExhausted is returned alongside the full result.
func (a *WheelAllocator) Allocate(count int) ([]string, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative winner count %d", ErrValidation, count)
	}
	if count == 0 {
		return nil, nil
	}
	pool := WheelPool(count)
	order := a.perm(len(pool))
	slots := make([]string, count)
	for i := range slots {
		if i < len(order) {
			slots[i] = pool[order[i]]
			continue
		}
		slots[i] = TBDSlot
	}
	if count > len(pool) {
		return slots, fmt.Errorf("%w: %d winners for %d slots", ErrAllocatorExhausted, count, len(pool))
	}
	return slots, nil
}

func (a *WheelAllocator) perm(n int) []int {
	if a == nil || a.rng == nil {
		return rand.Perm(n)
	}
	return a.rng.Perm(n)
}

func hourSlots(hours []int) []string {
	out := make([]string, 0, len(hours)*60/slotStepMinutes)
	for _, hour := range hours {
		for minute := 0; minute < 60; minute += slotStepMinutes {
			out = append(out, formatSlot(hour, minute))
		}
	}
	return out
}

func formatSlot(hour, minute int) string {
	suffix := "PM"
	if hour < 12 {
		suffix = "AM"
	}
	display := hour % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:%02d %s", display, minute, suffix)
}
