// Package model defines the core domain types for the course seat watcher.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCRN is returned when a course reference number is not exactly
// five ASCII digits.
var ErrInvalidCRN = errors.New("invalid CRN")

// CRNLength is the exact number of digits in a course reference number.
const CRNLength = 5

// ValidateCRN reports whether crn is exactly five ASCII digits.
func ValidateCRN(crn string) error {
	if len(crn) != CRNLength {
		return fmt.Errorf("%w: %q is not a valid CRN", ErrInvalidCRN, crn)
	}
	for i := 0; i < len(crn); i++ {
		if crn[i] < '0' || crn[i] > '9' {
			return fmt.Errorf("%w: %q is not a valid CRN", ErrInvalidCRN, crn)
		}
	}
	return nil
}

// CourseInfo identifies a course section. It is resolved once, when the
// first user subscribes to a CRN, and never changes afterwards.
type CourseInfo struct {
	CRN     string `json:"crn"`
	Term    string `json:"term"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	Section string `json:"section"`
	URL     string `json:"url"`
}

// String renders the course the way it appears in notifications.
func (c CourseInfo) String() string {
	return fmt.Sprintf("%s (%s %s, CRN %s)", c.Name, c.Code, c.Section, c.CRN)
}

// Status is the registration availability of a course as published by the
// registrar. Values are taken verbatim; vacant is not recomputed from
// capacity and taken.
type Status struct {
	Seats          int `json:"seats"`
	SeatsTaken     int `json:"seats_taken"`
	SeatsVacant    int `json:"seats_vacant"`
	Waitlist       int `json:"waitlist"`
	WaitlistTaken  int `json:"waitlist_taken"`
	WaitlistVacant int `json:"waitlist_vacant"`
}

// Vacant returns the vacancy count for the given axis.
func (s Status) Vacant(axis Axis) int {
	if axis == AxisWaitlist {
		return s.WaitlistVacant
	}
	return s.SeatsVacant
}

// Availability is the one-bit state tracked per axis.
type Availability string

const (
	Closed Availability = "closed"
	Open   Availability = "open"
)

// Axis is one of the independently tracked availability dimensions.
type Axis string

const (
	AxisSeats    Axis = "seats"
	AxisWaitlist Axis = "waitlist"
)

// Axes lists every axis in evaluation order.
var Axes = []Axis{AxisSeats, AxisWaitlist}

// NotificationKind classifies a notification.
type NotificationKind string

const (
	KindSeat     NotificationKind = "seat"
	KindWaitlist NotificationKind = "waitlist"
	KindDegraded NotificationKind = "degraded"
	KindStartup  NotificationKind = "startup"
)

// Notification is a message addressed to the subscribers of one course.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	CRN       string           `json:"crn,omitempty"`
	Text      string           `json:"text"`
	Mentions  []string         `json:"mentions,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewNotification builds a notification with a fresh ID.
func NewNotification(kind NotificationKind, crn, text string, mentions []string) Notification {
	return Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		CRN:       crn,
		Text:      text,
		Mentions:  mentions,
		CreatedAt: time.Now().UTC(),
	}
}

// OpeningNotification builds the message sent when an axis opens.
func OpeningNotification(info CourseInfo, axis Axis, mentions []string) Notification {
	if axis == AxisWaitlist {
		return NewNotification(KindWaitlist, info.CRN, fmt.Sprintf("Waitlist available: %s.", info), mentions)
	}
	return NewNotification(KindSeat, info.CRN, fmt.Sprintf("Seat available: %s.", info), mentions)
}

// DegradedNotification builds the one-time notice sent when a course could
// not be checked several times in a row.
func DegradedNotification(info CourseInfo, failures int, mentions []string) Notification {
	return NewNotification(KindDegraded, info.CRN,
		fmt.Sprintf("Course %s could not be checked %d times in a row.", info, failures), mentions)
}

// CourseSnapshot is a read-only copy of a watched course's state.
type CourseSnapshot struct {
	Info        CourseInfo            `json:"info"`
	Status      *Status               `json:"status,omitempty"`
	State       map[Axis]Availability `json:"state"`
	Subscribers int                   `json:"subscribers"`
	Failures    int                   `json:"consecutive_failures"`
	LastChecked time.Time             `json:"last_checked,omitzero"`
}

// SubscribeRequest is the payload for adding courses to a watchlist.
type SubscribeRequest struct {
	CRNs []string `json:"crns"`
	Term string   `json:"term,omitempty"`
}

// SubscribeResult summarises the outcome for a single CRN of a subscribe
// request.
type SubscribeResult struct {
	CRN     string `json:"crn"`
	Added   bool   `json:"added"`
	Message string `json:"message"`
	Error   error  `json:"-"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
