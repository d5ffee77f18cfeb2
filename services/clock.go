package services

import "time"

// Clock defines "now" and the calendar used for day boundaries.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Location: loc}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now().In(c.loc())
	}
	return c.Now().In(c.loc())
}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// startOfDay truncates t to local midnight.
func (c Clock) startOfDay(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
}

func (c Clock) today() time.Time {
	return c.startOfDay(c.now())
}

func (c Clock) sameDay(a, b time.Time) bool {
	return c.startOfDay(a).Equal(c.startOfDay(b))
}
