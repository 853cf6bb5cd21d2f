package clock

import (
	"time"
)

// Clock is the single time source for expiry and issuance comparisons.
// Inject Fixed in tests to make them deterministic.
type Clock interface {
	Now() time.Time
}

// System returns the current UTC time
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant. Move it with Advance.
type Fixed struct {
	Time time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{Time: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	return f.Time
}

func (f *Fixed) Advance(d time.Duration) {
	f.Time = f.Time.Add(d)
}
