package report

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-checkout/internal/domain/sale"
)

// ErrInvalidWindow is returned when a window does not end after it starts.
var ErrInvalidWindow = errors.New("report window must end after it starts")

// Service produces reports from the sales ledger.
type Service struct {
	sales sale.Repository
	loc   *time.Location
	now   func() time.Time
	opts  Options
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLocation sets the timezone that defines day and month boundaries.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) { s.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithOptions sets the aggregation options.
func WithOptions(o Options) ServiceOption {
	return func(s *Service) { s.opts = o }
}

// NewService creates a report Service.
func NewService(sales sale.Repository, opts ...ServiceOption) *Service {
	s := &Service{
		sales: sales,
		loc:   time.Local,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location returns the reporting timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// DayWindow returns local midnight of t's day and the next local midnight.
func DayWindow(t time.Time, loc *time.Location) (start, end time.Time) {
	t = t.In(loc)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// MonthWindow returns the first local midnight of t's month and of the next.
func MonthWindow(t time.Time, loc *time.Location) (start, end time.Time) {
	t = t.In(loc)
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// Today reports on the current local day.
func (s *Service) Today(ctx context.Context) (*Report, error) {
	start, end := DayWindow(s.now(), s.loc)
	return s.Window(ctx, start, end)
}

// Month reports on the current calendar month.
func (s *Service) Month(ctx context.Context) (*Report, error) {
	start, end := MonthWindow(s.now(), s.loc)
	return s.Window(ctx, start, end)
}

// Window reports on sales created in [start, end).
func (s *Service) Window(ctx context.Context, start, end time.Time) (*Report, error) {
	if !end.After(start) {
		return nil, errors.Wrapf(ErrInvalidWindow, "[%s, %s)", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	sales, err := s.sales.ListBetween(ctx, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	rep := Aggregate(sales, start, end, s.opts)
	return &rep, nil
}
