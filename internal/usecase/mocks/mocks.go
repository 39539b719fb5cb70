package mocks

import (
	"fmt"
	"sync"
	"time"
)

// SequenceIDGenerator returns prefix-1, prefix-2, ...
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	return &SequenceIDGenerator{prefix: prefix}
}

func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// StepClock advances by Step on every call to Now.
type StepClock struct {
	mu   sync.Mutex
	Cur  time.Time
	Step time.Duration
}

func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{Cur: start, Step: step}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.Cur
	c.Cur = c.Cur.Add(c.Step)
	return now
}

// Set moves the clock to t.
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Cur = t
}
