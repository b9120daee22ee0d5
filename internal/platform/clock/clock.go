package clock

import "time"

// Clock abstracts wall time so session timestamps and durations stay
// deterministic in tests. Everything the agent records is UTC.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
