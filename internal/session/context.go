package session

// DialogueContext tracks the slots an in-progress intent still needs and
// the values resolved so far. It is mutated only by the manager's driver
// goroutine, synchronously within the understanding transition, so it
// needs no locking.
//
// The context is scoped to one intent within one session: it is cleared
// after execution and on every terminal teardown, so slot values never
// leak into an unrelated later session. Facts a skill wants to keep
// beyond that go through the long-term memory store instead.
type DialogueContext struct {
	intentType string
	pending    []string
	filled     map[string]string
}

// NewDialogueContext returns an empty context.
func NewDialogueContext() *DialogueContext {
	return &DialogueContext{filled: make(map[string]string)}
}

// Expect registers the slots still required to complete the given intent
// type. Calling Expect for a different intent type resets the context
// first.
func (d *DialogueContext) Expect(intentType string, slots ...string) {
	if d.intentType != intentType {
		d.reset()
		d.intentType = intentType
	}
	for _, slot := range slots {
		if _, done := d.filled[slot]; done {
			continue
		}
		if !d.isPending(slot) {
			d.pending = append(d.pending, slot)
		}
	}
}

// PendingSlots returns the ordered slots still unresolved for the given
// intent type. A different intent type has no pending slots.
func (d *DialogueContext) PendingSlots(intentType string) []string {
	if d.intentType != intentType {
		return nil
	}
	return append([]string(nil), d.pending...)
}

// Fill records a resolved slot value and removes the slot from the
// pending queue if it was there.
func (d *DialogueContext) Fill(slot, value string) {
	d.filled[slot] = value
	for i, pending := range d.pending {
		if pending == slot {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
}

// Slot returns a resolved value, or "" when the slot is unresolved.
func (d *DialogueContext) Slot(slot string) string {
	return d.filled[slot]
}

// Complete reports whether no required slots remain for the given intent
// type.
func (d *DialogueContext) Complete(intentType string) bool {
	if d.intentType != intentType {
		return true
	}
	return len(d.pending) == 0
}

// Clear drops all state held for the given intent type. Clearing a
// different intent type is a no-op.
func (d *DialogueContext) Clear(intentType string) {
	if d.intentType != intentType {
		return
	}
	d.reset()
}

func (d *DialogueContext) reset() {
	d.intentType = ""
	d.pending = nil
	d.filled = make(map[string]string)
}

func (d *DialogueContext) isPending(slot string) bool {
	for _, pending := range d.pending {
		if pending == slot {
			return true
		}
	}
	return false
}
