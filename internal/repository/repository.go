// Package repository owns the watchlist registry and the notification
// journal.
//
// The watchlist is held in memory for the life of the process. Every
// operation, including the poller's apply phase, runs as one critical
// section under a single mutex, so no caller ever sees a half-applied
// change.
package repository

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
)

// ErrAlreadySubscribed is returned when a user subscribes to a CRN twice.
var ErrAlreadySubscribed = errors.New("already watching this course")

// ErrNotWatching is returned when a user removes a CRN they do not watch.
var ErrNotWatching = errors.New("not watching this course")

// ErrUnknownCRN is returned when nobody watches the CRN at all. It wraps
// ErrNotWatching: from the caller's point of view they are not watching it
// either.
var ErrUnknownCRN = fmt.Errorf("%w: course is not being watched", ErrNotWatching)

// WatchlistRepository maps CRNs to their records.
type WatchlistRepository struct {
	mu      sync.Mutex
	records map[string]*model.Record
}

// NewWatchlistRepository constructs an empty WatchlistRepository.
func NewWatchlistRepository() *WatchlistRepository {
	return &WatchlistRepository{records: make(map[string]*model.Record)}
}

// Subscribe adds user to an existing record.
//
// ok is false when no record exists for the CRN; the caller must resolve
// the course and use Insert.
func (r *WatchlistRepository) Subscribe(crn, user string) (ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[crn]
	if !ok {
		return false, nil
	}
	if rec.IsSubscribed(user) {
		return true, ErrAlreadySubscribed
	}
	rec.Subscribe(user)
	return true, nil
}

// Insert stores a new record for info with user as its first subscriber.
//
// Another caller may have inserted the same CRN while info was being
// resolved; in that case the existing record wins and user is added to it.
func (r *WatchlistRepository) Insert(info model.CourseInfo, user string) (created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[info.CRN]; ok {
		if rec.IsSubscribed(user) {
			return false, ErrAlreadySubscribed
		}
		rec.Subscribe(user)
		return false, nil
	}

	rec := model.NewRecord(info)
	rec.Subscribe(user)
	r.records[info.CRN] = rec
	return true, nil
}

// Unsubscribe removes user from a CRN and evicts the record once nobody is
// left watching it.
func (r *WatchlistRepository) Unsubscribe(crn, user string) (evicted bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[crn]
	if !ok {
		return false, ErrUnknownCRN
	}
	if err := rec.Unsubscribe(user); err != nil {
		return false, ErrNotWatching
	}
	if rec.SubscriberCount() == 0 {
		delete(r.records, crn)
		return true, nil
	}
	return false, nil
}

// ListFor returns the CRNs user watches, sorted.
func (r *WatchlistRepository) ListFor(user string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var crns []string
	for crn, rec := range r.records {
		if rec.IsSubscribed(user) {
			crns = append(crns, crn)
		}
	}
	slices.Sort(crns)
	return crns
}

// Clear removes user from every record and evicts records left empty. It
// returns the CRNs the user was removed from, sorted.
func (r *WatchlistRepository) Clear(user string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for crn, rec := range r.records {
		if rec.Unsubscribe(user) != nil {
			continue
		}
		removed = append(removed, crn)
		if rec.SubscriberCount() == 0 {
			// Deleting during range is safe for Go maps.
			delete(r.records, crn)
		}
	}
	slices.Sort(removed)
	return removed
}

// Contains reports whether a record exists for crn.
func (r *WatchlistRepository) Contains(crn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.records[crn]
	return ok
}

// Len returns the number of watched courses.
func (r *WatchlistRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records)
}

// Targets returns the identity of every watched course, sorted by CRN.
// CourseInfo is immutable, so the result may be used without the lock.
func (r *WatchlistRepository) Targets() []model.CourseInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]model.CourseInfo, 0, len(r.records))
	for _, crn := range slices.Sorted(maps.Keys(r.records)) {
		targets = append(targets, r.records[crn].Info())
	}
	return targets
}

// Snapshots returns copies of every watched course's state, sorted by CRN.
func (r *WatchlistRepository) Snapshots() []model.CourseSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snaps := make([]model.CourseSnapshot, 0, len(r.records))
	for _, crn := range slices.Sorted(maps.Keys(r.records)) {
		snaps = append(snaps, r.records[crn].Snapshot())
	}
	return snaps
}

// Apply runs fn for each listed course that is still watched, all under one
// hold of the lock. Courses evicted since the caller read Targets are
// skipped, and so are courses that were evicted and then re-added with a
// different identity (a new term).
func (r *WatchlistRepository) Apply(targets []model.CourseInfo, fn func(rec *model.Record, i int)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, info := range targets {
		rec, ok := r.records[info.CRN]
		if !ok || rec.Info() != info {
			continue
		}
		fn(rec, i)
	}
}
