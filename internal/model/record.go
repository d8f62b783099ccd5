package model

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// ErrNotSubscribed is returned when removing a user who is not subscribed
// to a record.
var ErrNotSubscribed = errors.New("user is not subscribed")

// Record holds one watched course: its immutable info, the last observed
// status, the subscriber set and the per-axis availability state.
//
// Record is not safe for concurrent use. The watchlist repository owns every
// Record and serialises access to it.
type Record struct {
	info        CourseInfo
	status      *Status
	subscribers map[string]struct{}
	state       map[Axis]Availability

	failures    int
	degraded    bool
	lastChecked time.Time
}

// NewRecord creates a record with no subscribers and both axes closed.
func NewRecord(info CourseInfo) *Record {
	return &Record{
		info:        info,
		subscribers: make(map[string]struct{}),
		state: map[Axis]Availability{
			AxisSeats:    Closed,
			AxisWaitlist: Closed,
		},
	}
}

// Info returns the course identity.
func (r *Record) Info() CourseInfo { return r.info }

// CRN returns the course reference number.
func (r *Record) CRN() string { return r.info.CRN }

// Status returns a copy of the last observed status, or nil before the
// first successful refresh.
func (r *Record) Status() *Status {
	if r.status == nil {
		return nil
	}
	s := *r.status
	return &s
}

// State returns the availability of one axis.
func (r *Record) State(axis Axis) Availability { return r.state[axis] }

// Subscribe adds user to the subscriber set. Adding an existing subscriber
// is a no-op.
func (r *Record) Subscribe(user string) {
	r.subscribers[user] = struct{}{}
}

// Unsubscribe removes user from the subscriber set.
func (r *Record) Unsubscribe(user string) error {
	if _, ok := r.subscribers[user]; !ok {
		return ErrNotSubscribed
	}
	delete(r.subscribers, user)
	return nil
}

// IsSubscribed reports whether user is subscribed.
func (r *Record) IsSubscribed(user string) bool {
	_, ok := r.subscribers[user]
	return ok
}

// SubscriberCount returns the number of subscribers.
func (r *Record) SubscriberCount() int { return len(r.subscribers) }

// Subscribers returns the subscriber mentions in sorted order.
func (r *Record) Subscribers() []string {
	return slices.Sorted(maps.Keys(r.subscribers))
}

// Observe stores a freshly fetched status and advances both availability
// state machines. It returns the axes that moved from closed to open, in
// evaluation order. Closing is silent and staying open never repeats.
func (r *Record) Observe(status Status, at time.Time) []Axis {
	var opened []Axis
	for _, axis := range Axes {
		vacant := status.Vacant(axis)
		switch r.state[axis] {
		case Closed:
			if vacant > 0 {
				r.state[axis] = Open
				opened = append(opened, axis)
			}
		case Open:
			if vacant <= 0 {
				r.state[axis] = Closed
			}
		}
	}

	s := status
	r.status = &s
	r.failures = 0
	r.degraded = false
	r.lastChecked = at
	return opened
}

// ObserveFailure records a failed refresh. Status and availability are left
// untouched. It returns true exactly once per failure streak, when the
// streak first reaches threshold. A threshold of zero or less never
// escalates.
func (r *Record) ObserveFailure(threshold int) bool {
	r.failures++
	if threshold <= 0 || r.degraded || r.failures < threshold {
		return false
	}
	r.degraded = true
	return true
}

// Failures returns the current consecutive failure count.
func (r *Record) Failures() int { return r.failures }

// Snapshot returns a copy of the record safe to hand out of the lock.
func (r *Record) Snapshot() CourseSnapshot {
	return CourseSnapshot{
		Info:        r.info,
		Status:      r.Status(),
		State:       maps.Clone(r.state),
		Subscribers: len(r.subscribers),
		Failures:    r.failures,
		LastChecked: r.lastChecked,
	}
}
