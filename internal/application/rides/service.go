// Package rides is the truck-route board. Rides live in the produce
// collection, told apart by type "ride".
package rides

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"agrihill-backend/internal/application/live"
	"agrihill-backend/internal/domain"
	"agrihill-backend/internal/infrastructure/docstore"
	"agrihill-backend/internal/infrastructure/pending"
	"agrihill-backend/internal/pkg/validation"

	"github.com/rs/zerolog/log"
)

const (
	DefaultCollection = "produce"
	// pendingFeed keys the session slot apart from produce posts sharing
	// the collection.
	pendingFeed = "rides"
)

var (
	ErrFeedUnavailable = errors.New("Failed to connect to routes. Check your connection.")
	ErrInvalidForm     = errors.New("Please fix the errors in the form")
)

// Schema reads ride documents in both layouts: the canonical one written by
// Post and the older one that reused produce field names.
var Schema = live.Schema{
	Kind: domain.KindRide,
	Text: map[domain.Field][]string{
		domain.FieldVehicle:     {"vehicle", "category"},
		domain.FieldOrigin:      {"origin", "name"},
		domain.FieldDestination: {"destination", "location"},
		domain.FieldContact:     {"contact"},
		domain.FieldNotes:       {"notes", "description"},
		domain.FieldStatus:      {"status"},
	},
	Number: map[domain.Field][]string{
		domain.FieldPrice:    {"ratePerKm", "rate", "price"},
		domain.FieldQuantity: {"capacityKg", "capacity", "quantity"},
	},
	Fallback: map[domain.Field]string{domain.FieldVehicle: "Truck"},
}

// QuerySchema decodes a ride passed in URL parameters.
var QuerySchema = live.Schema{
	Kind: domain.KindRide,
	Text: map[domain.Field][]string{
		domain.FieldVehicle:     {"vehicle", "name"},
		domain.FieldOrigin:      {"origin"},
		domain.FieldDestination: {"destination"},
		domain.FieldContact:     {"contact"},
		domain.FieldNotes:       {"notes", "description"},
	},
	Number: map[domain.Field][]string{
		domain.FieldPrice:    {"rate", "price"},
		domain.FieldQuantity: {"capacity", "quantity"},
	},
	Fallback: map[domain.Field]string{domain.FieldVehicle: "Truck"},
}

var Messages = live.Messages{
	Success:          "Ride posted successfully!",
	PermissionDenied: "You don't have permission to post rides. Please sign in again.",
	Unavailable:      "Service temporarily unavailable. Try again later.",
	Other:            "Failed to post ride. Please try again.",
}

func Defaults() []domain.Record {
	return []domain.Record{
		{ID: "truck1", Kind: domain.KindRide, Vehicle: "Mini Truck", Price: 25, Quantity: 1000, Origin: "Guwahati", Destination: "Shillong", Contact: "9876543210", Notes: "Daily runs"},
		{ID: "truck2", Kind: domain.KindRide, Vehicle: "Pickup Truck", Price: 30, Quantity: 1500, Origin: "Imphal", Destination: "Aizawl", Contact: "9123456780", Notes: "Available Mon-Sat"},
	}
}

type Config struct {
	Collection  string
	MaxAttempts int
	RetryDelay  time.Duration
}

type Service struct {
	View      *live.View
	Submitter *live.Submitter
	Pending   *pending.Slot
}

func New(ctx context.Context, store docstore.Store, slot *pending.Slot, cfg Config) (*Service, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	view, err := live.Open(ctx, store, live.Options{
		Collection: cfg.Collection,
		OrderBy:    docstore.OrderCreatedAt,
		Schema:     Schema,
		Defaults:   Defaults(),
	})
	if err != nil {
		return nil, fmt.Errorf("open ride feed: %w", err)
	}
	return &Service{
		View: view,
		Submitter: &live.Submitter{
			Writer:      store,
			Collection:  cfg.Collection,
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.RetryDelay,
			Messages:    Messages,
		},
		Pending: slot,
	}, nil
}

func (s *Service) Close() { s.View.Close() }

// Query holds the route search. Sort is "price" (cheapest first),
// "capacity" (largest first) or empty for feed order.
type Query struct {
	Origin      string `query:"searchOrigin" json:"searchOrigin"`
	Destination string `query:"searchDestination" json:"searchDestination"`
	Sort        string `query:"sort" json:"sort"`
}

func (q Query) filter() live.Filter {
	return live.Filter{Contains: map[domain.Field]string{
		domain.FieldOrigin:      q.Origin,
		domain.FieldDestination: q.Destination,
	}}
}

func (q Query) order() live.Order {
	switch strings.ToLower(strings.TrimSpace(q.Sort)) {
	case "price":
		return live.ByPriceAsc
	case "capacity":
		return live.ByQuantityDesc
	}
	return live.NoOrder
}

// Incoming holds the transient rides a request may carry.
type Incoming struct {
	// Navigation is a ride object handed over in a request body.
	Navigation map[string]any
	// Params are URL query parameters; ride fields among them form a record.
	Params url.Values
}

// Feed returns the route board. Transient rides rank navigation, then URL
// parameters, then the session's pending posts.
func (s *Service) Feed(ctx context.Context, sessionID string, q Query, in Incoming) (live.Page, error) {
	if err := s.View.State().Err; err != nil {
		return live.Page{}, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	var nav, query []domain.Record
	if in.Navigation != nil {
		if rec, ok := QuerySchema.Incoming(in.Navigation, domain.SourceNavigation); ok {
			nav = append(nav, rec)
		}
	}
	if len(in.Params) > 0 {
		if rec, ok := QuerySchema.FromQuery(in.Params); ok {
			query = append(query, rec)
		}
	}
	session, err := s.Pending.Take(ctx, sessionID, pendingFeed)
	if err != nil {
		log.Warn().Err(err).Msg("rides: pending slot unavailable")
	}
	page, err := s.View.Page(q.filter(), q.order(), nav, query, session)
	if err != nil {
		s.restore(ctx, sessionID, session)
		return live.Page{}, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	return page, nil
}

// restore hands taken pending records back to the slot when the read failed.
func (s *Service) restore(ctx context.Context, sessionID string, recs []domain.Record) {
	if err := s.Pending.Restore(ctx, sessionID, pendingFeed, recs); err != nil {
		log.Warn().Err(err).Int("records", len(recs)).Msg("rides: could not restore pending records")
	}
}

func (s *Service) Changed() <-chan struct{} { return s.View.Changed() }

func (s *Service) Refresh() error { return s.View.Refresh() }

// PostInput is the post-ride form.
type PostInput struct {
	Vehicle     string            `json:"vehicle"`
	Origin      string            `json:"origin"`
	Destination string            `json:"destination"`
	Rate        validation.Amount `json:"rate"`
	Capacity    validation.Amount `json:"capacity"`
	Contact     string            `json:"contact"`
	Notes       string            `json:"notes"`
}

func (in PostInput) Validate() validation.FieldErrors {
	var errs validation.FieldErrors
	if validation.Blank(in.Vehicle) {
		errs.Add("vehicle", "Vehicle is required")
	}
	if validation.Blank(in.Origin) {
		errs.Add("origin", "Origin is required")
	}
	if validation.Blank(in.Destination) {
		errs.Add("destination", "Destination is required")
	}
	if in.Rate < 0 {
		errs.Add("rate", "Rate must be a non-negative number")
	}
	if in.Capacity < 0 {
		errs.Add("capacity", "Capacity must be a non-negative number")
	}
	switch {
	case validation.Blank(in.Contact):
		errs.Add("contact", "Contact number is required")
	case !validation.IsValidContact(in.Contact):
		errs.Add("contact", "Please enter a valid 10-digit contact number")
	}
	return errs
}

func (in PostInput) fields() map[string]any {
	return map[string]any{
		"type":        string(domain.KindRide),
		"vehicle":     strings.TrimSpace(in.Vehicle),
		"origin":      strings.TrimSpace(in.Origin),
		"destination": strings.TrimSpace(in.Destination),
		"ratePerKm":   in.Rate.Float(),
		"capacityKg":  in.Capacity.Float(),
		"contact":     strings.TrimSpace(in.Contact),
		"notes":       strings.TrimSpace(in.Notes),
		"status":      "active",
	}
}

type PostResult struct {
	Outcome  live.Outcome
	Record   *domain.Record
	Progress []string
	Reset    bool
}

// Post validates and submits a ride. See produce.Service.Post for the error
// contract.
func (s *Service) Post(ctx context.Context, sessionID string, in PostInput) (*PostResult, error) {
	if errs := in.Validate(); !errs.Empty() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidForm, errs)
	}
	fields := in.fields()
	res := &PostResult{}
	res.Outcome = s.Submitter.Submit(ctx, fields, func(attempt, max int) {
		res.Progress = append(res.Progress, fmt.Sprintf("Retrying... (attempt %d/%d)", attempt, max))
	})
	if !res.Outcome.OK() {
		return res, nil
	}

	fields["id"] = res.Outcome.ID
	if rec, ok := Schema.Incoming(fields, domain.SourceSession); ok {
		now := time.Now().UTC()
		rec.CreatedAt, rec.LastUpdated = &now, &now
		res.Record = &rec
		if err := s.Pending.Put(ctx, sessionID, pendingFeed, rec); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("rides: could not stash pending record")
		}
	}
	res.Reset = true
	log.Info().Str("id", res.Outcome.ID).Int("attempts", res.Outcome.Attempts).Msg("rides: posted")
	return res, nil
}
