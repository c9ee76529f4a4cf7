package clock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/internal/clock/entity"
	clockrepo "github.com/ovaphlow/splashops/service-core/internal/clock/repo"
	"github.com/ovaphlow/splashops/service-core/pkg/metrics"
)

var (
	ErrAlreadyClockedIn    = errors.New("already clocked in")
	ErrShiftCompletedToday = errors.New("shift already completed today")
	ErrNotClockedIn        = errors.New("not clocked in")
	ErrInvalidRange        = errors.New("invalid date range")
	ErrInvalidLocation     = errors.New("invalid job location")
)

// Config holds the timezone that defines "today" for shifts.
type Config struct {
	Location *time.Location
}

func ConfigFromEnv() (Config, error) {
	name := strings.TrimSpace(os.Getenv("CLOCK_TIMEZONE"))
	if name == "" {
		return Config{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Config{}, fmt.Errorf("CLOCK_TIMEZONE: %w", err)
	}
	return Config{Location: loc}, nil
}

// Store is the persistence used by Service.
type Store interface {
	Open(ctx context.Context, userID int64) (*entity.Record, error)
	LastCompletedBetween(ctx context.Context, userID int64, from, to time.Time) (*entity.Record, error)
	Insert(ctx context.Context, rec *entity.Record) error
	Close(ctx context.Context, userID int64, at time.Time) (*entity.Record, error)
	Range(ctx context.Context, userID int64, from, to time.Time) ([]entity.Record, error)
	Active(ctx context.Context) ([]entity.Record, error)
}

var _ Store = (*clockrepo.ClockRepo)(nil)

type Service struct {
	store  Store
	clock  clockwork.Clock
	loc    *time.Location
	logger *zap.SugaredLogger
}

func New(store Store, cfg Config, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, clock: clock, loc: cfg.Location, logger: logger}
}

func NewClockService(db *sqlx.DB, cfg Config, logger *zap.SugaredLogger) *Service {
	return New(clockrepo.NewClockRepo(db), cfg, nil, logger)
}

func (s *Service) now() time.Time { return s.clock.Now().In(s.loc) }

// dayBounds returns [start of day, start of next day) for t in the service location.
func (s *Service) dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.In(s.loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// ClockIn opens a shift. With a shift already completed today and force
// unset it returns ErrShiftCompletedToday together with that shift.
func (s *Service) ClockIn(ctx context.Context, userID int64, locationID *int64, notes string, force bool) (*entity.Record, error) {
	rec, err := s.clockIn(ctx, userID, locationID, notes, force)
	metrics.ClockEvents.WithLabelValues("in", clockResult(err)).Inc()
	return rec, err
}

func (s *Service) clockIn(ctx context.Context, userID int64, locationID *int64, notes string, force bool) (*entity.Record, error) {
	if _, err := s.store.Open(ctx, userID); err == nil {
		return nil, ErrAlreadyClockedIn
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load open shift: %w", err)
	}

	now := s.now()
	if !force {
		from, to := s.dayBounds(now)
		prev, err := s.store.LastCompletedBetween(ctx, userID, from, to)
		switch {
		case err == nil:
			return prev, ErrShiftCompletedToday
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("load completed shift: %w", err)
		}
	}

	rec := &entity.Record{UserID: userID, LocationID: locationID, ClockInTime: now.UTC()}
	if n := strings.TrimSpace(notes); n != "" {
		rec.JobsiteNotes = &n
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		switch {
		case errors.Is(err, clockrepo.ErrOpenShiftExists):
			return nil, ErrAlreadyClockedIn
		case errors.Is(err, clockrepo.ErrUnknownLocation):
			return nil, ErrInvalidLocation
		}
		return nil, fmt.Errorf("insert shift: %w", err)
	}
	s.logger.Infow("clocked in", "user_id", userID, "record_id", rec.ID)
	return rec, nil
}

// ClockOut closes the open shift.
func (s *Service) ClockOut(ctx context.Context, userID int64) (*entity.Record, error) {
	rec, err := s.store.Close(ctx, userID, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotClockedIn
		} else {
			err = fmt.Errorf("close shift: %w", err)
		}
		metrics.ClockEvents.WithLabelValues("out", clockResult(err)).Inc()
		return nil, err
	}
	metrics.ClockEvents.WithLabelValues("out", "ok").Inc()
	s.logger.Infow("clocked out", "user_id", userID, "record_id", rec.ID)
	return rec, nil
}

// Status is the current clock state of a user.
type Status struct {
	ClockedIn   bool
	Current     *entity.Record
	HoursWorked float64
}

func (s *Service) Status(ctx context.Context, userID int64) (Status, error) {
	rec, err := s.store.Open(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Status{}, nil
		}
		return Status{}, err
	}
	return Status{ClockedIn: true, Current: rec, HoursWorked: round2(rec.HoursAt(s.now()))}, nil
}

// Report is a user's shifts over a date range.
type Report struct {
	From       time.Time
	To         time.Time
	Records    []entity.Record
	TotalHours float64
}

// Records lists shifts whose start falls on the calendar days start..end
// (inclusive). Nil bounds default to the last seven days. The total counts
// completed shifts only.
func (s *Service) Records(ctx context.Context, userID int64, start, end *time.Time) (*Report, error) {
	today, _ := s.dayBounds(s.now())
	rep := &Report{From: today.AddDate(0, 0, -7), To: today}
	if start != nil {
		rep.From, _ = s.dayBounds(*start)
	}
	if end != nil {
		rep.To, _ = s.dayBounds(*end)
	}
	if rep.To.Before(rep.From) {
		return nil, ErrInvalidRange
	}
	list, err := s.store.Range(ctx, userID, rep.From, rep.To.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	rep.Records = list
	for _, r := range list {
		if r.TotalHours != nil {
			rep.TotalHours += *r.TotalHours
		}
	}
	rep.TotalHours = round2(rep.TotalHours)
	return rep, nil
}

// Week is a user's hours for the calendar week containing now.
type Week struct {
	Start      time.Time
	End        time.Time
	TotalHours float64
}

// ThisWeek sums completed shifts started since Sunday midnight in the
// configured zone. End is the Saturday that closes the week.
func (s *Service) ThisWeek(ctx context.Context, userID int64) (Week, error) {
	today, _ := s.dayBounds(s.now())
	start := today.AddDate(0, 0, -int(today.Weekday()))
	list, err := s.store.Range(ctx, userID, start, start.AddDate(0, 0, 7))
	if err != nil {
		return Week{}, err
	}
	wk := Week{Start: start, End: start.AddDate(0, 0, 6)}
	for _, r := range list {
		if r.TotalHours != nil {
			wk.TotalHours += *r.TotalHours
		}
	}
	wk.TotalHours = round2(wk.TotalHours)
	return wk, nil
}

// ActiveShifts lists everyone currently clocked in.
func (s *Service) ActiveShifts(ctx context.Context) ([]entity.Record, error) {
	return s.store.Active(ctx)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func clockResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyClockedIn):
		return "already_clocked_in"
	case errors.Is(err, ErrShiftCompletedToday):
		return "needs_confirmation"
	case errors.Is(err, ErrNotClockedIn):
		return "not_clocked_in"
	case errors.Is(err, ErrInvalidLocation):
		return "invalid_location"
	default:
		return "error"
	}
}

// Location is the timezone calendar days are computed in.
func (s *Service) Location() *time.Location { return s.loc }
