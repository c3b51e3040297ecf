package state

// HistoryCapacity is the number of snapshots kept in memory. Older
// entries are overwritten; the database keeps the long tail.
const HistoryCapacity = 100

// historyRing is a fixed-capacity ring of committed snapshots. It is not
// safe for concurrent use on its own; the Store serializes access under
// its mutex.
type historyRing struct {
	entries []Snapshot
	next    int
	count   int
}

func newHistoryRing(capacity int) *historyRing {
	return &historyRing{entries: make([]Snapshot, capacity)}
}

// append stores a snapshot, overwriting the oldest entry once the ring
// is full.
func (r *historyRing) append(s Snapshot) {
	r.entries[r.next] = s
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// recent returns up to k snapshots in newest-first order.
func (r *historyRing) recent(k int) []Snapshot {
	if k > r.count {
		k = r.count
	}
	if k <= 0 {
		return nil
	}
	out := make([]Snapshot, 0, k)
	idx := r.next
	for i := 0; i < k; i++ {
		idx--
		if idx < 0 {
			idx = len(r.entries) - 1
		}
		out = append(out, r.entries[idx])
	}
	return out
}

func (r *historyRing) len() int {
	return r.count
}
