package chat

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator issues strictly increasing message ids.
type IDGenerator interface {
	Next() int64
	// NextPair returns id and id+1, both reserved.
	NextPair() (int64, int64)
}

// Counter is a deterministic IDGenerator starting after a seed value.
type Counter struct {
	mu   sync.Mutex
	last int64
}

// NewCounter returns a Counter whose first id is seed+1.
func NewCounter(seed int64) *Counter {
	return &Counter{last: seed}
}

// Next returns the next id.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// NextPair returns two consecutive ids.
func (c *Counter) NextPair() (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last += 2
	return c.last - 1, c.last
}

// ClockIDs derives ids from the millisecond clock, bumping past the previous
// id when the clock has not advanced.
type ClockIDs struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClockIDs returns a clock-backed generator.
func NewClockIDs() *ClockIDs {
	return &ClockIDs{now: time.Now}
}

// Next returns the next id.
func (c *ClockIDs) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextLocked()
	c.last = id
	return id
}

// NextPair returns id and id+1 from a single clock read. A later Next
// never hands out id+1 even when the clock has moved past it.
func (c *ClockIDs) NextPair() (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextLocked()
	c.last = id + 1
	return id, id + 1
}

func (c *ClockIDs) nextLocked() int64 {
	id := c.now().UnixMilli()
	if id <= c.last {
		id = c.last + 1
	}
	return id
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// NewThreadID returns an id for an explicitly created thread.
func NewThreadID() string {
	return uuid.NewString()
}
