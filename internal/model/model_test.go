package model

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestValidateCRN(t *testing.T) {
	tests := []struct {
		crn   string
		valid bool
	}{
		{"12345", true},
		{"00000", true},
		{"1234", false},
		{"123456", false},
		{"", false},
		{"12a45", false},
		{" 1234", false},
		{"１２３４５", false}, // full-width digits are not ASCII
		{"-1234", false},
	}
	for _, tt := range tests {
		t.Run(tt.crn, func(t *testing.T) {
			err := ValidateCRN(tt.crn)
			if tt.valid && err != nil {
				t.Fatalf("ValidateCRN(%q) = %v, want nil", tt.crn, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidCRN) {
				t.Fatalf("ValidateCRN(%q) = %v, want ErrInvalidCRN", tt.crn, err)
			}
		})
	}
}

func seats(vacant int) Status {
	return Status{Seats: 10, SeatsTaken: 10 - vacant, SeatsVacant: vacant}
}

func TestObserveEdgeTrigger(t *testing.T) {
	r := NewRecord(CourseInfo{CRN: "12345"})
	sequence := []int{0, 0, 3, 3, 0, 2}

	var fired []int
	for i, vacant := range sequence {
		opened := r.Observe(seats(vacant), time.Now())
		if slices.Contains(opened, AxisSeats) {
			fired = append(fired, i+1)
		}
	}

	if want := []int{3, 6}; !slices.Equal(fired, want) {
		t.Fatalf("notifications at observations %v, want %v", fired, want)
	}
	if r.State(AxisSeats) != Open {
		t.Errorf("seat state = %s, want open", r.State(AxisSeats))
	}
	if r.State(AxisWaitlist) != Closed {
		t.Errorf("waitlist state = %s, want closed", r.State(AxisWaitlist))
	}
}

func TestObserveNegativeVacancyCloses(t *testing.T) {
	r := NewRecord(CourseInfo{CRN: "12345"})
	r.Observe(seats(1), time.Now())
	if opened := r.Observe(Status{SeatsVacant: -2}, time.Now()); len(opened) != 0 {
		t.Fatalf("closing edge fired %v", opened)
	}
	if r.State(AxisSeats) != Closed {
		t.Fatalf("seat state = %s, want closed", r.State(AxisSeats))
	}
}

func TestObserveBothAxesSameTick(t *testing.T) {
	r := NewRecord(CourseInfo{CRN: "12345"})
	opened := r.Observe(Status{SeatsVacant: 1, WaitlistVacant: 4}, time.Now())
	if want := []Axis{AxisSeats, AxisWaitlist}; !slices.Equal(opened, want) {
		t.Fatalf("opened = %v, want %v", opened, want)
	}

	// Axes are independent: closing seats leaves the waitlist open and silent.
	opened = r.Observe(Status{SeatsVacant: 0, WaitlistVacant: 4}, time.Now())
	if len(opened) != 0 {
		t.Fatalf("opened = %v, want none", opened)
	}
	if r.State(AxisWaitlist) != Open {
		t.Fatalf("waitlist state = %s, want open", r.State(AxisWaitlist))
	}
}

func TestObserveFailureEscalatesOnce(t *testing.T) {
	r := NewRecord(CourseInfo{CRN: "12345"})
	r.Observe(seats(2), time.Now())

	var escalations int
	for range 6 {
		if r.ObserveFailure(3) {
			escalations++
		}
	}
	if escalations != 1 {
		t.Fatalf("escalations = %d, want 1", escalations)
	}
	if r.Failures() != 6 {
		t.Fatalf("failures = %d, want 6", r.Failures())
	}
	if r.State(AxisSeats) != Open || r.Status().SeatsVacant != 2 {
		t.Fatal("failure modified status or state")
	}

	// A success resets the streak so a later streak escalates again.
	r.Observe(seats(2), time.Now())
	if r.Failures() != 0 {
		t.Fatalf("failures after success = %d, want 0", r.Failures())
	}
	r.ObserveFailure(3)
	r.ObserveFailure(3)
	if !r.ObserveFailure(3) {
		t.Fatal("second streak did not escalate")
	}
}

func TestObserveFailureDisabled(t *testing.T) {
	r := NewRecord(CourseInfo{CRN: "12345"})
	for range 10 {
		if r.ObserveFailure(0) {
			t.Fatal("threshold 0 escalated")
		}
	}
}

func TestSubscribers(t *testing.T) {
	r := NewRecord(CourseInfo{CRN: "12345"})
	r.Subscribe("<@2>")
	r.Subscribe("<@1>")
	r.Subscribe("<@1>")

	if r.SubscriberCount() != 2 {
		t.Fatalf("count = %d, want 2", r.SubscriberCount())
	}
	if got := r.Subscribers(); !slices.Equal(got, []string{"<@1>", "<@2>"}) {
		t.Fatalf("subscribers = %v", got)
	}
	if err := r.Unsubscribe("<@1>"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := r.Unsubscribe("<@1>"); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("second unsubscribe = %v, want ErrNotSubscribed", err)
	}
	if r.IsSubscribed("<@1>") || !r.IsSubscribed("<@2>") {
		t.Fatal("subscription state wrong after unsubscribe")
	}
}

func TestOpeningNotificationText(t *testing.T) {
	info := CourseInfo{CRN: "12345", Name: "Data Structures", Code: "CS 1332", Section: "A"}
	n := OpeningNotification(info, AxisWaitlist, []string{"<@1>"})
	if n.Kind != KindWaitlist {
		t.Errorf("kind = %s", n.Kind)
	}
	if !strings.HasPrefix(n.Text, "Waitlist available: Data Structures (CS 1332 A, CRN 12345)") {
		t.Errorf("text = %q", n.Text)
	}
	if n.ID == "" {
		t.Error("notification has no id")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRecord(CourseInfo{CRN: "12345"})
	r.Observe(seats(1), time.Now())
	snap := r.Snapshot()
	snap.State[AxisSeats] = Closed
	snap.Status.SeatsVacant = 99
	if r.State(AxisSeats) != Open || r.Status().SeatsVacant != 1 {
		t.Fatal("snapshot aliases record state")
	}
}
