package clock

import "time"

type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now() }

// Func adapts a plain function, typically a fixed or stepping time in tests.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
