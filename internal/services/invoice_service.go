package services

import (
	"net/url"
	"strconv"
	"time"

	"faturas/internal/cache"
	"faturas/internal/core"
	"faturas/internal/metrics"
)

// InvoiceService builds invoices from a user's snapshot set, caching results
// by dataset version, day and query.
type InvoiceService struct {
	cache   cache.Cache[InvoiceResult]
	metrics *metrics.Collectors
	loc     *time.Location
	now     func() time.Time
}

// NewInvoiceService creates the service. c and m may be nil.
func NewInvoiceService(c cache.Cache[InvoiceResult], m *metrics.Collectors, loc *time.Location) *InvoiceService {
	if loc == nil {
		loc = time.UTC
	}
	return &InvoiceService{cache: c, metrics: m, loc: loc, now: time.Now}
}

// Today is the current calendar day in the service's time zone.
func (s *InvoiceService) Today() core.Date {
	return core.DateOf(s.now(), s.loc)
}

// Now is the current instant, used for plan checks.
func (s *InvoiceService) Now() time.Time {
	return s.now()
}

// CurrentMonth is the month containing Today.
func (s *InvoiceService) CurrentMonth() core.YearMonth {
	return s.Today().YearMonth()
}

// Invoice returns the invoice of q for a user's dataset.
func (s *InvoiceService) Invoice(userID string, ds core.Dataset, q InvoiceQuery) InvoiceResult {
	today := s.Today()
	key := userKey(userID) + strconv.FormatUint(ds.Version, 10) + "/" + today.String() + "/" + q.CacheKey()

	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			s.metrics.RecordCacheLookup(true)
			return res
		}
		s.metrics.RecordCacheLookup(false)
	}

	start := time.Now()
	res := BuildInvoiceItems(q, ds, today)
	if res.Failed {
		s.metrics.RecordAggregationFailure()
		return res
	}
	s.metrics.ObserveAggregation(time.Since(start), len(res.Items), len(res.Skipped))

	if s.cache != nil {
		s.cache.Set(key, res)
	}
	return res
}

// Invalidate drops every cached invoice of a user.
func (s *InvoiceService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	s.cache.DeletePrefix(userKey(userID))
}

// userKey escapes the id so one user's prefix never matches another user's keys.
func userKey(userID string) string {
	return url.PathEscape(userID) + "/"
}
