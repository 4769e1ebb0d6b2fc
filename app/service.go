// Package app ties the card collection to persistence and reference data.
// It serializes mutations, saves after each one and turns failures into
// notices the user interfaces can show as they are.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
	"github.com/philtim/figured/geonames"
	"github.com/philtim/figured/metrics"
	"github.com/philtim/figured/store"
)

// SearchLimit is the number of suggestions Search returns.
const SearchLimit = 10

// Options configures a Service.
type Options struct {
	Store     store.Store
	Reference *geonames.Database
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// SystemZone is the device timezone merged in on Load.
	SystemZone string
	// LocationsFile replaces the built-in reference table when set.
	LocationsFile string
	// SharedCities is how many reference cities sharing a picked city's
	// time are added with it.
	SharedCities int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the single owner of the card collection at runtime.
type Service struct {
	mu sync.Mutex

	store   store.Store
	ref     *geonames.Database
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	systemZone    string
	locationsFile string
	sharedCities  int

	col     *cards.Collection
	homeSet bool
	unsaved bool
}

// New returns a Service with an empty collection. Call Load before use.
func New(opts Options) *Service {
	s := &Service{
		store:         opts.Store,
		ref:           opts.Reference,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
		systemZone:    opts.SystemZone,
		locationsFile: opts.LocationsFile,
		sharedCities:  opts.SharedCities,
		col:           cards.New(),
	}
	if s.ref == nil {
		s.ref = geonames.NewDatabase()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Load reads the reference table and the saved state in parallel, restores
// the collection and merges in the system zone. The system zone is not
// saved. The returned notices describe anything that went wrong; Load only
// fails when ctx is done.
func (s *Service) Load(ctx context.Context) ([]Notice, error) {
	var (
		st     store.State
		refErr error
		stErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.locationsFile != "" {
			refErr = s.ref.LoadFile(s.locationsFile)
		} else {
			refErr = s.ref.LoadBuiltin()
		}
		return nil
	})
	g.Go(func() error {
		st, stErr = s.store.Load(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var notices []Notice
	if refErr != nil {
		s.log.Error("failed to load reference data", "error", refErr)
		notices = append(notices, noticeReferenceUnavailable)
	}
	if stErr != nil {
		s.log.Error("failed to load state", "error", stErr)
		s.metrics.StoreError("load")
		notices = append(notices, noticeStateUnreadable)
	}
	for _, err := range st.Discarded {
		s.log.Warn("discarded saved record", "error", err)
	}

	now := s.now()
	col, dropped := cards.Restore(st.Cards, now)
	for _, err := range dropped {
		s.log.Warn("dropped saved card", "error", err)
		var zerr *cards.ZoneResolutionError
		if errors.As(err, &zerr) {
			s.metrics.ResolveFailed()
		}
	}

	_, hasHome := col.Home()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.col = col
	// The flag alone is not enough: without a home card the prompt returns.
	s.homeSet = st.HomeSet && hasHome

	if s.systemZone != "" {
		loc := s.locationFor(s.systemZone)
		outcome, err := s.col.MergeSystemZone(loc, now)
		if err != nil {
			s.logMutationError("merge_system", loc, err)
		} else {
			s.log.Info("system timezone merged", "iana", loc.IANA, "outcome", outcome.String())
			s.metrics.Mutation("merge_system", outcome.String())
		}
	}

	s.metrics.SetCards(s.col.Len())
	s.metrics.SetReferenceCities(s.ref.Len())
	s.log.Info("state loaded",
		"cards", s.col.Len(),
		"home_set", s.homeSet,
		"reference_cities", s.ref.Len(),
	)
	return notices, nil
}

// locationFor returns the reference record of a zone, or a record named
// after the zone when the table has none.
func (s *Service) locationFor(iana string) cards.Location {
	if loc, ok := s.ref.ByZone(iana); ok {
		return loc
	}
	return cards.LocationFromZone(iana)
}

// find resolves a query against the reference table, turning lookup
// failures into notices.
func (s *Service) find(query string) (cards.Location, Notice, error) {
	loc, err := s.ref.Find(query)
	switch {
	case errors.Is(err, geonames.ErrReferenceDataUnavailable):
		return loc, noticeReferenceUnavailable, err
	case errors.Is(err, geonames.ErrLocationNotFound):
		return loc, noticeNotFound(query), err
	case err != nil:
		return loc, failure("%v", err), err
	}
	return loc, Notice{}, nil
}

// AddCity looks up query in the reference table and adds the city found.
func (s *Service) AddCity(ctx context.Context, query string) (Notice, error) {
	loc, n, err := s.find(query)
	if err != nil {
		s.metrics.Mutation("add", "error")
		return n, err
	}
	return s.AddLocation(ctx, loc)
}

// AddLocation adds loc to the card of its group, followed by up to
// SharedCities reference cities that share its time.
func (s *Service) AddLocation(ctx context.Context, loc cards.Location) (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	outcome, err := s.col.AddLocation(loc, now)
	if err != nil {
		return s.logMutationError("add", loc, err), err
	}
	s.metrics.Mutation("add", outcome.String())
	s.log.Info("location added", "city", loc.City, "iana", loc.IANA, "outcome", outcome.String())

	var shared int
	if outcome != cards.OutcomeAlreadyPresent {
		shared = s.addShared(loc, now)
	}

	if n, saved := s.save(ctx); !saved {
		return n, nil
	}
	if outcome == cards.OutcomeAlreadyPresent {
		return info("%s is already in your timezone list.", loc.City), nil
	}
	if shared > 0 {
		return success("Added %s to your timezones. Added %d other location(s) sharing the same current time.", loc.City, shared), nil
	}
	return success("Added %s to your timezones.", loc.City), nil
}

// addShared adds the reference cities sharing loc's time and returns how
// many joined the card.
func (s *Service) addShared(loc cards.Location, now time.Time) int {
	if s.sharedCities <= 0 || !s.ref.IsReady() {
		return 0
	}
	shared, err := s.ref.SharingTime(loc.IANA, now, s.sharedCities)
	if err != nil {
		s.log.Warn("failed to find cities sharing time", "iana", loc.IANA, "error", err)
		return 0
	}
	added := 0
	for _, other := range shared {
		outcome, err := s.col.AddShared(other, now)
		if err != nil {
			s.logMutationError("add_shared", other, err)
			continue
		}
		s.metrics.Mutation("add_shared", outcome.String())
		if outcome == cards.OutcomeAppended {
			added++
		}
	}
	return added
}

// RemoveCard deletes the card whose current key is key. The home card cannot
// be removed.
func (s *Service) RemoveCard(ctx context.Context, key clock.GroupKey) (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.col.RemoveCard(key, s.now())
	if err != nil {
		s.metrics.Mutation("remove", "error")
		s.log.Warn("remove rejected", "key", key.String(), "error", err)
		if errors.Is(err, cards.ErrCannotRemoveHome) {
			return noticeRemoveHome, err
		}
		return noticeCardGone, err
	}
	s.metrics.Mutation("remove", cards.OutcomeRemoved.String())
	s.log.Info("card removed", "key", key.String(), "title", card.Title())

	if n, saved := s.save(ctx); !saved {
		return n, nil
	}
	return success("Removed %s.", card.Title()), nil
}

// SetHome looks up query in the reference table and makes it home.
func (s *Service) SetHome(ctx context.Context, query string) (Notice, error) {
	loc, n, err := s.find(query)
	if err != nil {
		s.metrics.Mutation("set_home", "error")
		return n, err
	}
	return s.SetHomeLocation(ctx, loc)
}

// SetHomeLocation makes the card of loc's group the home card.
func (s *Service) SetHomeLocation(ctx context.Context, loc cards.Location) (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.col.SetHome(loc, s.now())
	if err != nil {
		return s.logMutationError("set_home", loc, err), err
	}
	s.homeSet = true
	s.metrics.Mutation("set_home", outcome.String())
	s.log.Info("home set", "city", loc.City, "iana", loc.IANA, "outcome", outcome.String())

	if n, saved := s.save(ctx); !saved {
		return n, nil
	}
	return success("Home timezone set to %s.", loc.City), nil
}

// logMutationError records a failed mutation and returns its notice.
func (s *Service) logMutationError(op string, loc cards.Location, err error) Notice {
	s.metrics.Mutation(op, "error")
	s.log.Warn("mutation rejected", "op", op, "city", loc.City, "iana", loc.IANA, "error", err)

	var zerr *cards.ZoneResolutionError
	switch {
	case errors.Is(err, cards.ErrCapacityExceeded):
		return noticeCapacity
	case errors.As(err, &zerr):
		s.metrics.ResolveFailed()
		return failure("Could not determine the time in %s.", loc.City)
	default:
		return failure("%v", err)
	}
}

// save persists the collection. Callers hold s.mu. On failure the
// in-memory state is kept and marked unsaved.
func (s *Service) save(ctx context.Context) (Notice, bool) {
	s.metrics.SetCards(s.col.Len())

	start := time.Now()
	err := s.store.Save(ctx, store.State{
		HomeSet: s.homeSet,
		Cards:   s.col.Persistable(),
	})
	s.metrics.ObserveSave(time.Since(start))
	if err != nil {
		s.unsaved = true
		s.metrics.StoreError("save")
		s.log.Error("failed to save state", "error", err)
		return noticeUnsaved, false
	}
	s.unsaved = false
	return Notice{}, true
}

// Rows returns the sorted cards with display fields at instant. It does not
// change the collection.
func (s *Service) Rows(at time.Time) []cards.Row {
	return cards.Recompute(s.collection().Snapshot(), at)
}

// Cards returns a copy of the cards in collection order.
func (s *Service) Cards() []cards.Card {
	return s.collection().Snapshot()
}

// collection returns the current collection. Load replaces it, so readers
// that do not hold s.mu for the whole call go through here.
func (s *Service) collection() *cards.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.col
}

// Search returns reference cities matching q.
func (s *Service) Search(q string) []cards.Location {
	return s.ref.Search(q, SearchLimit)
}

// HomeChoices lists every reference city for the home picker.
func (s *Service) HomeChoices() []cards.Location {
	return s.ref.Sorted()
}

// HomeSet reports whether the user has chosen a home timezone.
func (s *Service) HomeSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.homeSet
}

// Unsaved reports whether the last save failed.
func (s *Service) Unsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsaved
}

// Reference returns the reference table.
func (s *Service) Reference() *geonames.Database {
	return s.ref
}
