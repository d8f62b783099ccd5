// Package service implements the watchlist commands: subscribe, unsubscribe,
// list and clear. It validates input, resolves unseen courses through the
// fetcher and delegates storage to the watchlist repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/fetcher"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/metrics"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/repository"
)

// ErrUserRequired is returned when a command names no user.
var ErrUserRequired = errors.New("user is required")

// maxCRNsPerRequest bounds a single subscribe request.
const maxCRNsPerRequest = 25

// Resolver looks up a course's identity at the registrar.
type Resolver interface {
	Resolve(ctx context.Context, crn, term string) (model.CourseInfo, error)
}

// WatchService orchestrates watchlist commands.
type WatchService struct {
	watchlist   *repository.WatchlistRepository
	resolver    Resolver
	defaultTerm string
	metrics     *metrics.Metrics
}

// NewWatchService constructs a WatchService. m may be nil.
func NewWatchService(
	watchlist *repository.WatchlistRepository,
	resolver Resolver,
	defaultTerm string,
	m *metrics.Metrics,
) *WatchService {
	return &WatchService{
		watchlist:   watchlist,
		resolver:    resolver,
		defaultTerm: defaultTerm,
		metrics:     m,
	}
}

// DefaultTerm returns the term used when a request names none.
func (s *WatchService) DefaultTerm() string { return s.defaultTerm }

// Subscribe adds crn to user's watchlist. A CRN nobody watches yet is
// resolved first; resolution failures are returned and nothing is stored.
//
// The registrar is contacted outside the repository lock, so a slow lookup
// never holds up the poller or other commands.
func (s *WatchService) Subscribe(ctx context.Context, crn, term, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrUserRequired
	}
	if err := model.ValidateCRN(crn); err != nil {
		return err
	}
	if term = strings.TrimSpace(term); term == "" {
		term = s.defaultTerm
	}

	ok, err := s.watchlist.Subscribe(crn, user)
	if ok || err != nil {
		return err
	}

	info, err := s.resolver.Resolve(ctx, crn, term)
	if err != nil {
		return err
	}

	created, err := s.watchlist.Insert(info, user)
	if err != nil {
		return err
	}
	if created {
		slog.Info("watching course", "crn", crn, "term", term, "course", info.String())
		s.metrics.SetWatched(s.watchlist.Len())
	}
	return nil
}

// SubscribeMany subscribes user to each CRN independently. One bad CRN
// does not affect the others.
func (s *WatchService) SubscribeMany(ctx context.Context, crns []string, term, user string) ([]model.SubscribeResult, error) {
	if len(crns) == 0 {
		return nil, fmt.Errorf("at least one CRN is required")
	}
	if len(crns) > maxCRNsPerRequest {
		return nil, fmt.Errorf("at most %d CRNs per request", maxCRNsPerRequest)
	}

	results := make([]model.SubscribeResult, 0, len(crns))
	for _, crn := range crns {
		err := s.Subscribe(ctx, crn, term, user)
		if errors.Is(err, ErrUserRequired) {
			return nil, err
		}
		results = append(results, model.SubscribeResult{
			CRN:     crn,
			Added:   err == nil,
			Message: Describe(crn, err),
			Error:   err,
		})
	}
	return results, nil
}

// Unsubscribe removes crn from user's watchlist. The course stops being
// watched once its last subscriber leaves.
func (s *WatchService) Unsubscribe(crn, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrUserRequired
	}
	if err := model.ValidateCRN(crn); err != nil {
		return err
	}

	evicted, err := s.watchlist.Unsubscribe(crn, user)
	if err != nil {
		return err
	}
	if evicted {
		slog.Info("stopped watching course", "crn", crn)
		s.metrics.SetWatched(s.watchlist.Len())
	}
	return nil
}

// List returns the CRNs user watches, sorted.
func (s *WatchService) List(user string) ([]string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ErrUserRequired
	}
	return s.watchlist.ListFor(user), nil
}

// Clear empties user's watchlist and returns the CRNs removed.
func (s *WatchService) Clear(user string) ([]string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ErrUserRequired
	}
	removed := s.watchlist.Clear(user)
	s.metrics.SetWatched(s.watchlist.Len())
	return removed, nil
}

// Courses returns a snapshot of every watched course.
func (s *WatchService) Courses() []model.CourseSnapshot {
	return s.watchlist.Snapshots()
}

// Describe renders a short, user-facing outcome for one CRN.
func Describe(crn string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("added %s to watchlist.", crn)
	case errors.Is(err, model.ErrInvalidCRN):
		return fmt.Sprintf("%s is not a valid CRN.", crn)
	case errors.Is(err, repository.ErrAlreadySubscribed):
		return fmt.Sprintf("you are already watching %s.", crn)
	case errors.Is(err, repository.ErrUnknownCRN):
		return fmt.Sprintf("%s is not being watched.", crn)
	case errors.Is(err, repository.ErrNotWatching):
		return fmt.Sprintf("you are not watching %s.", crn)
	case errors.Is(err, fetcher.ErrNotFound):
		return fmt.Sprintf("%s was not found for this term.", crn)
	case errors.Is(err, fetcher.ErrParse):
		return fmt.Sprintf("could not read the registrar page for %s.", crn)
	case errors.Is(err, fetcher.ErrTransport):
		return fmt.Sprintf("could not reach the registrar for %s, try again later.", crn)
	default:
		return fmt.Sprintf("could not add %s: %v", crn, err)
	}
}
