package drivers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"agrihill-backend/internal/application/live"
	"agrihill-backend/internal/domain"
	"agrihill-backend/internal/pkg/validation"
)

var (
	ErrDriverNotFound = errors.New("Driver not found")
	ErrInvalidBooking = errors.New("Please fill all required fields.")
)

// TopRatedFrom is the rating at which a driver is badged top rated.
const TopRatedFrom = 4.7

// Directory returns the driver listings. Price is the quoted trip price in
// rupees, Quantity the load capacity in kg.
func Directory() []domain.Record {
	d := func(id, name, vehicle string, capacity float64, from, to, date string, price, rating float64, phone, notes string) domain.Record {
		return domain.Record{
			ID:          id,
			Kind:        domain.KindDriver,
			Source:      domain.SourceDefault,
			Name:        name,
			Vehicle:     vehicle,
			Quantity:    capacity,
			Origin:      from,
			Destination: to,
			Date:        date,
			Price:       price,
			Rating:      rating,
			Contact:     phone,
			Notes:       notes,
		}
	}
	return []domain.Record{
		d("DRV101", "Rakesh Kumar", "Mini Truck", 1500, "Guwahati", "Shillong", "2025-11-07", 2800, 4.7, "+91 91234 32345", "Experienced in farm produce; tarpaulin available."),
		d("DRV102", "Anita Das", "Pickup", 800, "Tezpur", "Guwahati", "2025-11-07", 1600, 4.5, "+91 89876 99876", "Refrigerated crates on request."),
		d("DRV103", "Bipul Saikia", "Tempo", 1200, "Jorhat", "Dibrugarh", "2025-11-08", 2100, 4.3, "+91 70112 01122", "Night driving ok; loading help possible."),
		d("DRV104", "Meera Gogoi", "Mini Truck", 2000, "Guwahati", "Nagaon", "2025-11-09", 3200, 4.9, "+91 98776 77766", "GPS live share; blankets & straps included."),
	}
}

// Service searches the driver directory and prepares booking requests.
type Service struct {
	drivers []domain.Record
}

func NewService(directory []domain.Record) *Service {
	return &Service{drivers: directory}
}

// Query is the driver search. Sort defaults to price; "none" keeps
// directory order.
type Query struct {
	From     string  `query:"from"`
	To       string  `query:"to"`
	Vehicle  string  `query:"vehicle"`
	Date     string  `query:"date"`
	MaxPrice float64 `query:"maxPrice"`
	Sort     string  `query:"sort"`
}

func (q Query) order() live.Order {
	switch strings.ToLower(strings.TrimSpace(q.Sort)) {
	case "rating":
		return live.ByRatingDesc
	case "capacity":
		return live.ByQuantityDesc
	case "none":
		return live.NoOrder
	}
	return live.ByPriceAsc
}

// Driver is a directory entry as listed to clients.
type Driver struct {
	domain.Record
	TopRated bool `json:"topRated"`
}

func (s *Service) Search(_ context.Context, q Query) []Driver {
	rows := live.Project(s.drivers, live.Filter{
		Contains: map[domain.Field]string{
			domain.FieldOrigin:      q.From,
			domain.FieldDestination: q.To,
		},
		Equals: map[domain.Field]string{
			domain.FieldVehicle: q.Vehicle,
			domain.FieldDate:    q.Date,
		},
		Max: map[domain.Field]float64{domain.FieldPrice: q.MaxPrice},
	}, q.order())

	out := make([]Driver, len(rows))
	for i, r := range rows {
		out[i] = Driver{Record: r, TopRated: r.Rating >= TopRatedFrom}
	}
	return out
}

// Vehicles lists the distinct vehicle types in directory order.
func (s *Service) Vehicles() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range s.drivers {
		if !seen[d.Vehicle] {
			seen[d.Vehicle] = true
			out = append(out, d.Vehicle)
		}
	}
	return out
}

func (s *Service) Get(id string) (domain.Record, error) {
	for _, d := range s.drivers {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Record{}, ErrDriverNotFound
}

// BookingInput is the booking form. Pickup, Drop and Date default to the
// driver's route when left blank.
type BookingInput struct {
	Name   string            `json:"name"`
	Phone  string            `json:"phone"`
	Pickup string            `json:"pickup"`
	Drop   string            `json:"drop"`
	Date   string            `json:"date"`
	Weight validation.Amount `json:"weight"`
	Notes  string            `json:"notes"`
}

// Booking is what the client needs to contact the driver.
type Booking struct {
	DriverID string `json:"driverId"`
	WhatsApp string `json:"whatsapp"`
	Call     string `json:"call"`
	Summary  string `json:"summary"`
}

var nonDigits = regexp.MustCompile(`\D`)

// Book validates the form and builds the WhatsApp and call links for the
// driver. Nothing is stored.
func (s *Service) Book(_ context.Context, driverID string, in BookingInput) (*Booking, error) {
	d, err := s.Get(driverID)
	if err != nil {
		return nil, err
	}
	if validation.Blank(in.Pickup) {
		in.Pickup = d.Origin
	}
	if validation.Blank(in.Drop) {
		in.Drop = d.Destination
	}
	if validation.Blank(in.Date) {
		in.Date = d.Date
	}

	var errs validation.FieldErrors
	for field, v := range map[string]string{
		"name": in.Name, "phone": in.Phone, "pickup": in.Pickup, "drop": in.Drop, "date": in.Date,
	} {
		if validation.Blank(v) {
			errs.Add(field, "required")
		}
	}
	if in.Weight <= 0 {
		errs.Add("weight", "required")
	}
	if !errs.Empty() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBooking, errs)
	}

	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		notes = "-"
	}
	weight := formatAmount(in.Weight.Float())
	message := fmt.Sprintf("Hi %s, I'm %s.\n", d.Name, in.Name) +
		"Load details:\n" +
		fmt.Sprintf("• Pickup: %s\n", in.Pickup) +
		fmt.Sprintf("• Drop: %s\n", in.Drop) +
		fmt.Sprintf("• Date: %s\n", in.Date) +
		fmt.Sprintf("• Weight: %s kg\n", weight) +
		fmt.Sprintf("Notes: %s\n", notes) +
		fmt.Sprintf("Quoted price on app: ₹%s\n\n", formatAmount(d.Price)) +
		"Please confirm availability."

	return &Booking{
		DriverID: d.ID,
		WhatsApp: "https://wa.me/" + nonDigits.ReplaceAllString(d.Contact, "") + "?text=" + strings.ReplaceAll(url.QueryEscape(message), "+", "%20"),
		Call:     "tel:" + strings.Join(strings.Fields(d.Contact), ""),
		Summary: fmt.Sprintf("Customer: %s, Phone: %s\nPickup: %s\nDrop: %s\nDate: %s\nWeight: %s kg\nNotes: %s",
			in.Name, in.Phone, in.Pickup, in.Drop, in.Date, weight, notes),
	}, nil
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
