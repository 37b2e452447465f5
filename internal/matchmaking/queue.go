package matchmaking

import (
	"sync"
	"time"
)

// ModifierTimed is the queue tag that creates timed-mode matches.
const ModifierTimed = "timed"

type Entry struct {
	Conn     string
	JoinedAt time.Time
	Modifier string
}

// Pair is two compatible entries removed from the queue together. First joined earlier.
type Pair struct {
	First  Entry
	Second Entry
}

func (p Pair) Modifier() string { return p.First.Modifier }

// Queue is a FIFO waiting list. Entries pair only with entries carrying the same
// modifier; untagged entries pair with each other.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Enqueue adds conn to the back of the queue. It returns false if conn is already waiting.
func (q *Queue) Enqueue(conn, modifier string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(conn) >= 0 {
		return false
	}
	q.entries = append(q.entries, Entry{Conn: conn, JoinedAt: q.now(), Modifier: modifier})
	return true
}

// Dequeue removes conn if present. Removing an absent conn is a no-op.
func (q *Queue) Dequeue(conn string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(conn)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// TryPairAll removes and returns every pair that can be formed, scanning in arrival order.
func (q *Queue) TryPairAll() []Pair {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pairs []Pair
	waiting := make(map[string]int) // modifier -> index into pending of the oldest unpaired entry
	pending := make([]*Entry, len(q.entries))
	for i := range q.entries {
		e := q.entries[i]
		if j, ok := waiting[e.Modifier]; ok {
			pairs = append(pairs, Pair{First: *pending[j], Second: e})
			pending[j] = nil
			delete(waiting, e.Modifier)
			continue
		}
		pending[i] = &e
		waiting[e.Modifier] = i
	}
	if len(pairs) == 0 {
		return nil
	}

	rest := q.entries[:0]
	for _, e := range pending {
		if e != nil {
			rest = append(rest, *e)
		}
	}
	q.entries = rest
	return pairs
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) Contains(conn string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexOf(conn) >= 0
}

func (q *Queue) indexOf(conn string) int {
	for i, e := range q.entries {
		if e.Conn == conn {
			return i
		}
	}
	return -1
}
