package state

import "fmt"

// Field group names used for baseline keys and the commit metrics label.
const (
	groupBusy    = "busy"
	groupAlarm   = "alarm"
	groupGateway = "gateway"
)

func commandGroup(id PumpID) string {
	return fmt.Sprintf("pump%d_command", id)
}

func feedbackGroup(id PumpID) string {
	return fmt.Sprintf("pump%d_feedback", id)
}

// baseline tracks the last committed value per field group. A value that
// equals its baseline is a redundant update: it refreshes the live record
// but produces no history entry and no database row.
type baseline struct {
	committed map[string]any
}

func newBaseline() *baseline {
	return &baseline{committed: make(map[string]any)}
}

// significant reports whether v differs from the committed baseline for
// the group. The first observation of a group is always significant.
func (b *baseline) significant(group string, v any) bool {
	prev, ok := b.committed[group]
	if !ok {
		return true
	}
	return prev != v
}

// commit records v as the new baseline for the group. Only called for
// significant values; redundant updates must leave the baseline alone.
func (b *baseline) commit(group string, v any) {
	b.committed[group] = v
}
