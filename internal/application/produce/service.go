package produce

import (
	"context"
	"fmt"
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
	pendingFeed       = "produce"
)

// Schema reads produce documents. pricePerKg/quantityKg are written by the
// post form; older documents only carry price/quantity.
var Schema = live.Schema{
	Kind: domain.KindProduce,
	Text: map[domain.Field][]string{
		domain.FieldName:     {"name"},
		domain.FieldCategory: {"category"},
		domain.FieldLocation: {"location"},
		domain.FieldContact:  {"contact"},
		domain.FieldNotes:    {"description", "notes"},
		domain.FieldImageURL: {"imageUrl"},
		domain.FieldStatus:   {"status"},
	},
	Number: map[domain.Field][]string{
		domain.FieldPrice:    {"pricePerKg", "price"},
		domain.FieldQuantity: {"quantityKg", "quantity"},
	},
}

var Messages = live.Messages{
	Success:          "Produce posted successfully!",
	PermissionDenied: "You don't have permission to post produce. Please sign in again.",
	Unavailable:      "Service temporarily unavailable. Try again later.",
	Other:            "Failed to post produce. Please try again.",
}

// Defaults are the sample listings shown beneath live produce.
func Defaults() []domain.Record {
	sample := func(id, name string, price, qty float64, location, category, image string) domain.Record {
		return domain.Record{
			ID:       id,
			Kind:     domain.KindProduce,
			Name:     name,
			Price:    price,
			Quantity: qty,
			Location: location,
			Category: category,
			ImageURL: "/assets/" + image,
		}
	}
	return []domain.Record{
		sample("local1", "Organic Tomatoes", 25, 50, "Ziro, Arunachal Pradesh", "Vegetable", "tomatoes.jpg"),
		sample("local2", "Fresh Oranges", 40, 30, "Tinsukia, Assam", "Fruit", "oranges.jpg"),
		sample("local3", "King Chilli (Bhoot Jolokia)", 150, 10, "Imphal, Manipur", "Spice", "chilli.jpg"),
		sample("local4", "Ginger Roots", 50, 20, "Aizawl, Mizoram", "Spice", "ginger.jpg"),
		sample("local5", "Homemade Jam", 120, 15, "Shillong, Meghalaya", "Fruit", "jam.jpg"),
		sample("local6", "Organic Pickle", 90, 12, "Guwahati, Assam", "Spice", "pickle.jpg"),
		sample("local7", "Fresh Juice", 60, 25, "Agartala, Tripura", "Fruit", "juice.jpg"),
		sample("local8", "Kiwi Fruit", 80, 18, "Kohima, Nagaland", "Fruit", "kiwi.jpg"),
	}
}

// Config carries the write-path settings.
type Config struct {
	Collection  string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Service is the marketplace: a live produce feed plus the post form.
type Service struct {
	View      *live.View
	Submitter *live.Submitter
	Pending   *pending.Slot
}

// New opens the marketplace view. The caller owns the returned service and
// must Close it.
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
		return nil, fmt.Errorf("open produce feed: %w", err)
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

// Query holds the marketplace filters.
type Query struct {
	Category string  `query:"category" json:"category"`
	Location string  `query:"location" json:"location"`
	MaxPrice float64 `query:"maxPrice" json:"maxPrice"`
	Sort     string  `query:"sort" json:"sort"`
}

func (q Query) filter() live.Filter {
	category := strings.TrimSpace(q.Category)
	if strings.EqualFold(category, "All") {
		category = ""
	}
	return live.Filter{
		Equals:   map[domain.Field]string{domain.FieldCategory: category},
		Contains: map[domain.Field]string{domain.FieldLocation: q.Location},
		Max:      map[domain.Field]float64{domain.FieldPrice: q.MaxPrice},
	}
}

func (q Query) order() live.Order {
	if strings.EqualFold(strings.TrimSpace(q.Sort), "price") {
		return live.ByPriceAsc
	}
	return live.NoOrder
}

// Feed returns the filtered marketplace. incoming is an optional record
// handed over by the client (navigation state); the session's pending posts
// are consumed by this read.
func (s *Service) Feed(ctx context.Context, sessionID string, q Query, incoming map[string]any) (live.Page, error) {
	if err := s.View.State().Err; err != nil {
		return live.Page{}, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	var nav []domain.Record
	if incoming != nil {
		if rec, ok := Schema.Incoming(incoming, domain.SourceNavigation); ok {
			nav = append(nav, rec)
		}
	}
	session, err := s.Pending.Take(ctx, sessionID, pendingFeed)
	if err != nil {
		log.Warn().Err(err).Msg("produce: pending slot unavailable")
	}
	page, err := s.View.Page(q.filter(), q.order(), nav, session)
	if err != nil {
		s.restore(ctx, sessionID, session)
		return live.Page{}, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	return page, nil
}

// restore hands taken pending records back to the slot when the read failed.
func (s *Service) restore(ctx context.Context, sessionID string, recs []domain.Record) {
	if err := s.Pending.Restore(ctx, sessionID, pendingFeed, recs); err != nil {
		log.Warn().Err(err).Int("records", len(recs)).Msg("produce: could not restore pending records")
	}
}

func (s *Service) Changed() <-chan struct{} { return s.View.Changed() }

// Refresh resubscribes after a connection failure.
func (s *Service) Refresh() error { return s.View.Refresh() }

// PostInput is the post-produce form.
type PostInput struct {
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Price       validation.Amount `json:"price"`
	Quantity    validation.Amount `json:"quantity"`
	Location    string            `json:"location"`
	Contact     string            `json:"contact"`
	Description string            `json:"description"`
	ImageURL    string            `json:"imageUrl"`
}

func (in PostInput) Validate() validation.FieldErrors {
	var errs validation.FieldErrors
	if validation.Blank(in.Name) {
		errs.Add("name", "Product name is required")
	}
	if validation.Blank(in.Category) {
		errs.Add("category", "Category is required")
	}
	if in.Price <= 0 {
		errs.Add("price", "Valid price is required")
	}
	if in.Quantity <= 0 {
		errs.Add("quantity", "Valid quantity is required")
	}
	if validation.Blank(in.Location) {
		errs.Add("location", "Location is required")
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
	f := map[string]any{
		"type":        string(domain.KindProduce),
		"name":        strings.TrimSpace(in.Name),
		"category":    strings.TrimSpace(in.Category),
		"price":       in.Price.Float(),
		"quantity":    in.Quantity.Float(),
		"pricePerKg":  in.Price.Float(),
		"quantityKg":  in.Quantity.Float(),
		"location":    strings.TrimSpace(in.Location),
		"contact":     strings.TrimSpace(in.Contact),
		"description": strings.TrimSpace(in.Description),
		"status":      "active",
	}
	if u := strings.TrimSpace(in.ImageURL); u != "" {
		f["imageUrl"] = u
	}
	return f
}

// PostResult reports a submitted form. Reset tells the client to clear the
// form; it is false on failure so the user can retry with the same values.
type PostResult struct {
	Outcome  live.Outcome
	Record   *domain.Record
	Progress []string
	Reset    bool
}

// Post validates and submits the form. Validation failures are returned as
// an error wrapping ErrInvalidForm and validation.FieldErrors; nothing is
// written. Write failures are reported in the result's Outcome.
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
			log.Warn().Err(err).Str("id", rec.ID).Msg("produce: could not stash pending record")
		}
	}
	res.Reset = true
	log.Info().Str("id", res.Outcome.ID).Int("attempts", res.Outcome.Attempts).Msg("produce: posted")
	return res, nil
}
