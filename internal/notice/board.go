// Package notice keeps the recent user-visible banners shown by the dashboard.
package notice

import (
	"sync"
	"time"

	"github.com/trogers1052/stock-dashboard/internal/models"
)

// DefaultCapacity is the number of notices a Board keeps when none is given
const DefaultCapacity = 100

// Board is a bounded, concurrency-safe list of notices. Oldest entries are
// dropped once the capacity is reached.
type Board struct {
	mu       sync.Mutex
	notices  []models.Notice
	capacity int
	now      func() time.Time
}

// NewBoard creates a Board holding at most capacity notices
func NewBoard(capacity int) *Board {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Board{capacity: capacity, now: time.Now}
}

// Add records a notice
func (b *Board) Add(level, symbol, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notices = append(b.notices, models.Notice{
		Level:   level,
		Symbol:  symbol,
		Message: message,
		At:      b.now(),
	})
	if over := len(b.notices) - b.capacity; over > 0 {
		b.notices = append(b.notices[:0:0], b.notices[over:]...)
	}
}

// Error records an error banner
func (b *Board) Error(symbol, message string) { b.Add(models.NoticeError, symbol, message) }

// Info records an informational banner
func (b *Board) Info(symbol, message string) { b.Add(models.NoticeInfo, symbol, message) }

// Success records a success banner
func (b *Board) Success(symbol, message string) { b.Add(models.NoticeSuccess, symbol, message) }

// Recent returns up to n notices, newest first. n <= 0 returns all.
func (b *Board) Recent(n int) []models.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.notices) {
		n = len(b.notices)
	}
	out := make([]models.Notice, 0, n)
	for i := len(b.notices) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.notices[i])
	}
	return out
}

// Count returns the number of notices at level
func (b *Board) Count(level string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, nt := range b.notices {
		if nt.Level == level {
			n++
		}
	}
	return n
}
