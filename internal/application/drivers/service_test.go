package drivers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"agrihill-backend/internal/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func driverIDs(ds []Driver) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestSearch_DefaultsToPriceAscending(t *testing.T) {
	svc := NewService(Directory())
	got := svc.Search(context.Background(), Query{})
	assert.Equal(t, []string{"DRV102", "DRV103", "DRV101", "DRV104"}, driverIDs(got))
}

func TestSearch_Sorts(t *testing.T) {
	svc := NewService(Directory())
	ctx := context.Background()

	assert.Equal(t, []string{"DRV104", "DRV101", "DRV102", "DRV103"}, driverIDs(svc.Search(ctx, Query{Sort: "rating"})))
	assert.Equal(t, []string{"DRV104", "DRV101", "DRV103", "DRV102"}, driverIDs(svc.Search(ctx, Query{Sort: "capacity"})))
	assert.Equal(t, []string{"DRV101", "DRV102", "DRV103", "DRV104"}, driverIDs(svc.Search(ctx, Query{Sort: "none"})))
}

func TestSearch_Filters(t *testing.T) {
	svc := NewService(Directory())
	ctx := context.Background()

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"from substring", Query{From: "guwa"}, []string{"DRV101", "DRV104"}},
		{"to substring", Query{To: "GUWAHATI"}, []string{"DRV102"}},
		{"vehicle exact", Query{Vehicle: "mini truck"}, []string{"DRV101", "DRV104"}},
		{"vehicle is not a substring match", Query{Vehicle: "Truck"}, []string{}},
		{"date exact", Query{Date: "2025-11-07"}, []string{"DRV102", "DRV101"}},
		{"max price inclusive", Query{MaxPrice: 2100}, []string{"DRV102", "DRV103"}},
		{"max price zero is unset", Query{MaxPrice: 0}, []string{"DRV102", "DRV103", "DRV101", "DRV104"}},
		{"conjunctive", Query{From: "Guwahati", MaxPrice: 3000}, []string{"DRV101"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, driverIDs(svc.Search(ctx, tt.q)))
		})
	}
}

func TestSearch_TopRated(t *testing.T) {
	svc := NewService(Directory())
	for _, d := range svc.Search(context.Background(), Query{}) {
		assert.Equal(t, d.Rating >= 4.7, d.TopRated, d.ID)
	}
}

func TestVehicles(t *testing.T) {
	svc := NewService(Directory())
	assert.Equal(t, []string{"Mini Truck", "Pickup", "Tempo"}, svc.Vehicles())
}

func TestBook_BuildsLinks(t *testing.T) {
	svc := NewService(Directory())

	b, err := svc.Book(context.Background(), "DRV101", BookingInput{
		Name:   "Priya",
		Phone:  "9876543210",
		Weight: 350,
	})
	require.NoError(t, err)
	assert.Equal(t, "tel:+919123432345", b.Call)
	require.True(t, strings.HasPrefix(b.WhatsApp, "https://wa.me/919123432345?text="))

	text, err := url.QueryUnescape(strings.TrimPrefix(b.WhatsApp, "https://wa.me/919123432345?text="))
	require.NoError(t, err)
	assert.Equal(t, "Hi Rakesh Kumar, I'm Priya.\n"+
		"Load details:\n"+
		"• Pickup: Guwahati\n"+
		"• Drop: Shillong\n"+
		"• Date: 2025-11-07\n"+
		"• Weight: 350 kg\n"+
		"Notes: -\n"+
		"Quoted price on app: ₹2800\n\n"+
		"Please confirm availability.", text)
	assert.NotContains(t, b.WhatsApp, "+", "spaces are percent-encoded")

	assert.Equal(t, "Customer: Priya, Phone: 9876543210\nPickup: Guwahati\nDrop: Shillong\nDate: 2025-11-07\nWeight: 350 kg\nNotes: -", b.Summary)
}

func TestBook_Validation(t *testing.T) {
	svc := NewService(Directory())

	_, err := svc.Book(context.Background(), "DRV102", BookingInput{Phone: "1"})
	require.ErrorIs(t, err, ErrInvalidBooking)
	var fe validation.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe, "name")
	assert.Contains(t, fe, "weight")
	assert.NotContains(t, fe, "pickup", "pickup defaults to the driver's route")

	_, err = svc.Book(context.Background(), "DRV999", BookingInput{})
	assert.ErrorIs(t, err, ErrDriverNotFound)
}
