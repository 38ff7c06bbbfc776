// Package discovery maintains the ordered, distance-filtered candidate
// queue behind the swipe deck: cursor movement, rewind and reconciliation
// with asynchronous swipe submissions.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/domain/enums"
	"github.com/ivankudzin/matchlink/internal/geo"
	"github.com/ivankudzin/matchlink/internal/rest"
)

// maxFetchPages bounds the initial load so a huge feed cannot stall the
// deck build.
const maxFetchPages = 5

var (
	ErrValidation = errors.New("validation error")
	ErrExhausted  = errors.New("no more profiles")
	ErrNotLoaded  = errors.New("queue not loaded")
)

type CandidateSource interface {
	ListCandidates(ctx context.Context, cursor string, limit int) (rest.CandidatePage, error)
}

type SwipeSubmitter interface {
	SubmitSwipe(ctx context.Context, req rest.SwipeRequest) (rest.SwipeAck, error)
}

// LocationProvider yields the viewer's current coordinate. The call may
// suspend (GPS fix, permission prompt); it is the only non-REST suspension
// point of the deck build.
type LocationProvider interface {
	Current(ctx context.Context) (domain.Coordinate, error)
}

// LocationFunc adapts a plain function to LocationProvider.
type LocationFunc func(ctx context.Context) (domain.Coordinate, error)

func (f LocationFunc) Current(ctx context.Context) (domain.Coordinate, error) {
	return f(ctx)
}

type Config struct {
	RadiusDefaultKM float64
	RadiusMaxKM     float64
	PageSize        int
}

// SwipeOutcome reports what a swipe did to the deck and, when the backend
// confirmed a mutual like, the created match.
type SwipeOutcome struct {
	Swiped       domain.Candidate
	MatchCreated bool
	MatchID      int64
	// SubmitFailed is set when the REST call failed. The deck advanced
	// anyway: a stuck deck is worse than an occasional lost swipe.
	SubmitFailed bool
}

// Service owns the candidates/cursor pair. All mutation goes through
// Load/Swipe/Rewind/SetRadius/UpdateOrigin; nothing else touches the slice.
type Service struct {
	source   CandidateSource
	swipes   SwipeSubmitter
	location LocationProvider
	cfg      Config
	log      *zap.Logger

	mu         sync.Mutex
	raw        []domain.Candidate
	candidates []domain.Candidate
	cursor     int
	origin     domain.Coordinate
	radiusKM   float64
	loaded     bool
}

type Dependencies struct {
	Source   CandidateSource
	Swipes   SwipeSubmitter
	Location LocationProvider
}

func NewService(deps Dependencies, cfg Config, log *zap.Logger) *Service {
	if cfg.RadiusDefaultKM <= 0 {
		cfg.RadiusDefaultKM = 25
	}
	if cfg.RadiusMaxKM < cfg.RadiusDefaultKM {
		cfg.RadiusMaxKM = cfg.RadiusDefaultKM
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		source:   deps.Source,
		swipes:   deps.Swipes,
		location: deps.Location,
		cfg:      cfg,
		log:      log,
		radiusKM: cfg.RadiusDefaultKM,
	}
}

// Load fetches the raw candidate list and the viewer coordinate, then
// builds the distance-ordered queue with the cursor at 0.
func (s *Service) Load(ctx context.Context) error {
	if s.source == nil || s.location == nil {
		return fmt.Errorf("discovery dependencies are not configured")
	}

	raw := make([]domain.Candidate, 0, s.cfg.PageSize)
	cursor := ""
	for page := 0; page < maxFetchPages; page++ {
		result, err := s.source.ListCandidates(ctx, cursor, s.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("fetch candidates: %w", err)
		}
		raw = append(raw, result.Items...)
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	origin, err := s.location.Current(ctx)
	if err != nil {
		return fmt.Errorf("resolve viewer location: %w", err)
	}
	if !origin.Valid() {
		return fmt.Errorf("invalid viewer coordinate: %w", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	s.origin = origin
	s.loaded = true
	s.rebuildLocked()
	return nil
}

// Current returns the candidate under the cursor. ok is false once the
// queue is exhausted; the UI renders a terminal "no more profiles" state.
func (s *Service) Current() (domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.candidates) {
		return domain.Candidate{}, false
	}
	return s.candidates[s.cursor], true
}

// Swipe submits the action for the current candidate over REST and then
// advances the cursor. The cursor moves whether or not the submission
// succeeded; a failure is logged and reported in the outcome, never
// rolled back.
func (s *Service) Swipe(ctx context.Context, viewerID int64, action enums.SwipeAction) (SwipeOutcome, error) {
	if viewerID <= 0 {
		return SwipeOutcome{}, fmt.Errorf("invalid viewer id: %w", ErrValidation)
	}
	action, err := enums.ParseSwipeAction(string(action))
	if err != nil {
		return SwipeOutcome{}, err
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return SwipeOutcome{}, ErrNotLoaded
	}
	if s.cursor >= len(s.candidates) {
		s.mu.Unlock()
		return SwipeOutcome{}, ErrExhausted
	}
	target := s.candidates[s.cursor]
	s.mu.Unlock()

	outcome := SwipeOutcome{Swiped: target}
	if s.swipes != nil {
		ack, err := s.swipes.SubmitSwipe(ctx, rest.SwipeRequest{
			SwiperUserID: viewerID,
			SwipedUserID: target.UserID,
			Action:       action,
		})
		if err != nil {
			outcome.SubmitFailed = true
			s.log.Warn("swipe submission failed",
				zap.Int64("target_id", target.UserID),
				zap.String("action", string(action)),
				zap.Error(err))
		} else {
			outcome.MatchCreated = ack.MatchCreated
			outcome.MatchID = ack.MatchID
		}
	}

	s.mu.Lock()
	if s.cursor < len(s.candidates) {
		s.cursor++
	}
	s.mu.Unlock()

	return outcome, nil
}

// Rewind moves the cursor back one position, wrapping to the end of the
// queue when at position 0. The wraparound is a deliberate product policy
// (circular undo), not a clamp.
func (s *Service) Rewind() (domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	length := len(s.candidates)
	if length == 0 {
		s.cursor = 0
		return domain.Candidate{}, false
	}
	s.cursor = (s.cursor - 1 + length) % length
	return s.candidates[s.cursor], true
}

// SetRadius changes the radius preference (clamped to the configured max)
// and rebuilds the queue from the last-fetched raw list. The cursor resets:
// the candidate set and its ordering both change, so there is no position
// to preserve.
func (s *Service) SetRadius(km float64) error {
	if km <= 0 {
		return fmt.Errorf("radius must be positive: %w", ErrValidation)
	}
	if km > s.cfg.RadiusMaxKM {
		km = s.cfg.RadiusMaxKM
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.radiusKM = km
	s.rebuildLocked()
	return nil
}

// UpdateOrigin re-filters the queue against a new viewer coordinate.
func (s *Service) UpdateOrigin(origin domain.Coordinate) error {
	if !origin.Valid() {
		return fmt.Errorf("invalid coordinate: %w", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = origin
	s.rebuildLocked()
	return nil
}

// Remaining reports how many candidates are left including the current one.
func (s *Service) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.candidates) {
		return 0
	}
	return len(s.candidates) - s.cursor
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

func (s *Service) rebuildLocked() {
	s.candidates = geo.FilterByRadius(s.raw, s.origin, s.radiusKM)
	s.cursor = 0
}
