package rides

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"agrihill-backend/internal/application/live"
	"agrihill-backend/internal/domain"
	"agrihill-backend/internal/infrastructure/docstore"
	"agrihill-backend/internal/infrastructure/pending"
	"agrihill-backend/internal/pkg/validation"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRidesTest(t *testing.T) (*Service, *docstore.Memory) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	store := docstore.NewMemory()
	svc, err := New(context.Background(), store, &pending.Slot{Rdb: rdb}, Config{RetryDelay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	require.Eventually(t, func() bool { return !svc.View.State().Loading }, time.Second, 5*time.Millisecond)
	return svc, store
}

func waitRemote(t *testing.T, svc *Service, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(svc.View.State().Remote) == n }, time.Second, 5*time.Millisecond)
}

func TestFeed_LegacyRideDocument(t *testing.T) {
	svc, store := setupRidesTest(t)
	ctx := context.Background()
	_, err := store.Add(ctx, DefaultCollection, map[string]any{
		"type":        "ride",
		"name":        "Dimapur",
		"location":    "Kohima",
		"price":       "22",
		"quantity":    "900",
		"contact":     "9000000001",
		"description": "Weekends only",
	})
	require.NoError(t, err)
	_, err = store.Add(ctx, DefaultCollection, map[string]any{"name": "Tomatoes", "pricePerKg": 25})
	require.NoError(t, err)
	waitRemote(t, svc, 1)

	page, err := svc.Feed(ctx, "", Query{}, Incoming{})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total, "two defaults plus the one ride; produce is skipped")

	ride := page.Items[2]
	assert.Equal(t, domain.SourceRemote, ride.Source)
	assert.Equal(t, "Truck", ride.Vehicle)
	assert.Equal(t, "Dimapur", ride.Origin)
	assert.Equal(t, "Kohima", ride.Destination)
	assert.Equal(t, 22.0, ride.Price)
	assert.Equal(t, 900.0, ride.Quantity)
	assert.Equal(t, "Weekends only", ride.Notes)
}

func TestFeed_SearchIsCaseInsensitiveSubstring(t *testing.T) {
	svc, _ := setupRidesTest(t)

	page, err := svc.Feed(context.Background(), "", Query{Origin: "guw"}, Incoming{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "truck1", page.Items[0].ID)

	page, err = svc.Feed(context.Background(), "", Query{Origin: "  ", Destination: ""}, Incoming{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestFeed_QueryRecordAndNavigationRecord(t *testing.T) {
	svc, _ := setupRidesTest(t)

	params := url.Values{}
	params.Set("origin", "Nashik")
	params.Set("destination", "Mumbai")
	params.Set("capacity", "800")
	params.Set("searchOrigin", "")

	page, err := svc.Feed(context.Background(), "", Query{}, Incoming{
		Navigation: map[string]any{"vehicle": "Tempo", "origin": "Jorhat", "destination": "Dibrugarh", "rate": 18},
		Params:     params,
	})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)

	assert.Equal(t, domain.SourceNavigation, page.Items[0].Source)
	assert.Equal(t, "Tempo", page.Items[0].Vehicle)
	assert.Equal(t, 18.0, page.Items[0].Price)

	q := page.Items[1]
	assert.Equal(t, domain.SourceQuery, q.Source)
	assert.Equal(t, "Truck", q.Vehicle)
	assert.Equal(t, "Nashik", q.Origin)
	assert.Equal(t, "Mumbai", q.Destination)
	assert.Equal(t, 800.0, q.Quantity)
	assert.Equal(t, 0.0, q.Price)
}

func TestFeed_SortByCapacity(t *testing.T) {
	svc, _ := setupRidesTest(t)

	page, err := svc.Feed(context.Background(), "", Query{Sort: "capacity"}, Incoming{})
	require.NoError(t, err)
	assert.Equal(t, "truck2", page.Items[0].ID)
}

func TestFeed_SubscriptionError(t *testing.T) {
	svc, store := setupRidesTest(t)
	store.Break(DefaultCollection, errors.New("offline"))
	require.Eventually(t, func() bool { return svc.View.State().Err != nil }, time.Second, 5*time.Millisecond)

	_, err := svc.Feed(context.Background(), "", Query{}, Incoming{})
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.Equal(t, "Failed to connect to routes. Check your connection.", ErrFeedUnavailable.Error())
}

func TestPost_Validation(t *testing.T) {
	svc, store := setupRidesTest(t)

	_, err := svc.Post(context.Background(), "sid", PostInput{Origin: "Pune", Rate: -1, Contact: "abc"})
	require.ErrorIs(t, err, ErrInvalidForm)
	var fe validation.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe, "vehicle")
	assert.Contains(t, fe, "destination")
	assert.Contains(t, fe, "rate")
	assert.NotContains(t, fe, "origin")
	assert.Equal(t, "Please enter a valid 10-digit contact number", fe["contact"])
	assert.Zero(t, store.Len(DefaultCollection))
}

func TestPost_WritesCanonicalRide(t *testing.T) {
	svc, store := setupRidesTest(t)
	ctx := context.Background()

	res, err := svc.Post(ctx, "sid-7", PostInput{
		Vehicle:     "Tempo",
		Origin:      "Silchar",
		Destination: "Agartala",
		Rate:        21,
		Capacity:    1100,
		Contact:     "9811122233",
	})
	require.NoError(t, err)
	require.True(t, res.Outcome.OK())
	assert.Equal(t, "Ride posted successfully!", res.Outcome.Message)
	assert.Equal(t, 1, store.Len(DefaultCollection))

	waitRemote(t, svc, 1)
	page, err := svc.Feed(ctx, "sid-7", Query{Destination: "agartala"}, Incoming{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, res.Outcome.ID, page.Items[0].ID)
	assert.Equal(t, domain.SourceRemote, page.Items[0].Source)
	assert.Equal(t, 1100.0, page.Items[0].Quantity)
}

func TestPost_PermissionDenied(t *testing.T) {
	svc, store := setupRidesTest(t)
	store.ReadOnly[DefaultCollection] = true

	res, err := svc.Post(context.Background(), "sid", PostInput{
		Vehicle: "Tempo", Origin: "A", Destination: "B", Contact: "9811122233",
	})
	require.NoError(t, err)
	assert.Equal(t, live.ClassPermissionDenied, res.Outcome.Class)
	assert.Equal(t, 3, res.Outcome.Attempts)
	assert.Equal(t, "You don't have permission to post rides. Please sign in again.", res.Outcome.Message)
}

func TestPost_PendingRideIsStampedAndSurvivesFailedRead(t *testing.T) {
	svc, _ := setupRidesTest(t)
	ctx := context.Background()

	res, err := svc.Post(ctx, "sid-3", PostInput{
		Vehicle: "Tempo", Origin: "Tezpur", Destination: "Jorhat", Contact: "9811122233",
	})
	require.NoError(t, err)
	require.True(t, res.Outcome.OK())
	require.NotNil(t, res.Record.CreatedAt)
	require.NotNil(t, res.Record.LastUpdated)
	assert.Equal(t, *res.Record.CreatedAt, *res.Record.LastUpdated)

	svc.Close()
	_, err = svc.Feed(ctx, "sid-3", Query{}, Incoming{})
	require.ErrorIs(t, err, ErrFeedUnavailable)

	kept, err := svc.Pending.Take(ctx, "sid-3", pendingFeed)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, res.Outcome.ID, kept[0].ID)
	require.NotNil(t, kept[0].CreatedAt)
}
