package domain

import (
	"math"
	"strings"
	"time"
)

// Kind discriminates records sharing one collection.
type Kind string

const (
	KindProduce Kind = "produce"
	KindRide    Kind = "ride"
	KindDriver  Kind = "driver"
)

// KindOf maps a raw `type` value to a Kind. Documents written before the
// field existed carry no type and belong to the produce feed.
func KindOf(raw string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindRide:
		return KindRide
	case KindDriver:
		return KindDriver
	default:
		return KindProduce
	}
}

// Source records where a Record entered a projection, highest priority first.
type Source string

const (
	SourceRemote     Source = "remote"
	SourceNavigation Source = "navigation"
	SourceQuery      Source = "query"
	SourceSession    Source = "session"
	SourceDefault    Source = "default"
)

// Field names one canonical Record field for filtering and sorting.
type Field string

const (
	FieldName        Field = "name"
	FieldVehicle     Field = "vehicle"
	FieldCategory    Field = "category"
	FieldLocation    Field = "location"
	FieldOrigin      Field = "origin"
	FieldDestination Field = "destination"
	FieldContact     Field = "contact"
	FieldNotes       Field = "notes"
	FieldImageURL    Field = "imageUrl"
	FieldStatus      Field = "status"
	FieldDate        Field = "date"
	FieldPrice       Field = "price"
	FieldQuantity    Field = "quantity"
	FieldRating      Field = "rating"
)

// Record is one produce listing, ride or driver entry in canonical form.
// Price is per kg for produce and per km (or per trip for drivers);
// Quantity is kg on offer for produce and load capacity for vehicles.
type Record struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"type"`
	Source      Source     `json:"source"`
	Name        string     `json:"name,omitempty"`
	Vehicle     string     `json:"vehicle,omitempty"`
	Category    string     `json:"category,omitempty"`
	Price       float64    `json:"price"`
	Quantity    float64    `json:"quantity"`
	Location    string     `json:"location,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Contact     string     `json:"contact,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	Status      string     `json:"status,omitempty"`
	Date        string     `json:"date,omitempty"`
	Rating      float64    `json:"rating,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Text returns the string value of f, or "" for numeric and unknown fields.
func (r *Record) Text(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldVehicle:
		return r.Vehicle
	case FieldCategory:
		return r.Category
	case FieldLocation:
		return r.Location
	case FieldOrigin:
		return r.Origin
	case FieldDestination:
		return r.Destination
	case FieldContact:
		return r.Contact
	case FieldNotes:
		return r.Notes
	case FieldImageURL:
		return r.ImageURL
	case FieldStatus:
		return r.Status
	case FieldDate:
		return r.Date
	}
	return ""
}

// SetText assigns a text field. Numeric and unknown fields are ignored.
func (r *Record) SetText(f Field, v string) {
	switch f {
	case FieldName:
		r.Name = v
	case FieldVehicle:
		r.Vehicle = v
	case FieldCategory:
		r.Category = v
	case FieldLocation:
		r.Location = v
	case FieldOrigin:
		r.Origin = v
	case FieldDestination:
		r.Destination = v
	case FieldContact:
		r.Contact = v
	case FieldNotes:
		r.Notes = v
	case FieldImageURL:
		r.ImageURL = v
	case FieldStatus:
		r.Status = v
	case FieldDate:
		r.Date = v
	}
}

// Number returns the numeric value of f. It never returns NaN or Inf, so the
// result is always safe to hand to a sort comparator.
func (r *Record) Number(f Field) float64 {
	var v float64
	switch f {
	case FieldPrice:
		v = r.Price
	case FieldQuantity:
		v = r.Quantity
	case FieldRating:
		v = r.Rating
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SetNumber assigns a numeric field. Text and unknown fields are ignored.
func (r *Record) SetNumber(f Field, v float64) {
	switch f {
	case FieldPrice:
		r.Price = v
	case FieldQuantity:
		r.Quantity = v
	case FieldRating:
		r.Rating = v
	}
}

// IsNumeric reports whether f holds a number.
func (f Field) IsNumeric() bool {
	return f == FieldPrice || f == FieldQuantity || f == FieldRating
}
