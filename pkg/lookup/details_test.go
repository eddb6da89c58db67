package lookup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/cache/mock"
	"places-cache/pkg/places"
	"places-cache/pkg/places/placestest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addPlaces(f *fixture, ids ...string) {
	for _, id := range ids {
		f.fake.AddPlace(places.Place{PlaceID: id, Name: "Place " + id, FormattedAddress: id + " Main St"})
	}
}

func TestBatchDetails_PositionalHoles(t *testing.T) {
	f := newFixture(t)
	addPlaces(f, "A", "C")

	results, err := f.svc.BatchDetails(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	require.Len(t, results, 3)
	require.NotNil(t, results[0])
	assert.Equal(t, "A", results[0].PlaceID)
	assert.Nil(t, results[1])
	require.NotNil(t, results[2])
	assert.Equal(t, "C", results[2].PlaceID)
}

func TestBatchDetails_Bounds(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BatchDetails(context.Background(), []string{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	ids := make([]string, 21)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}
	_, err = f.svc.BatchDetails(context.Background(), ids)
	assert.ErrorIs(t, err, ErrTooManyRequested)
	assert.Equal(t, 0, f.fake.TotalCalls())

	addPlaces(f, ids[:20]...)
	results, err := f.svc.BatchDetails(context.Background(), ids[:20])
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, rec := range results {
		require.NotNil(t, rec, "slot %d", i)
		assert.Equal(t, ids[i], rec.PlaceID)
	}
}

func TestBatchDetails_DuplicatesFetchedTwice(t *testing.T) {
	f := newFixture(t)
	addPlaces(f, "A")

	results, err := f.svc.BatchDetails(context.Background(), []string{"A", "A"})
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.Equal(t, 2, f.fake.Calls(placestest.OpDetails))
}

func TestBatchDetails_NegativeCache(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		results, err := f.svc.BatchDetails(context.Background(), []string{"gone"})
		require.NoError(t, err)
		assert.Nil(t, results[0])
	}

	assert.Equal(t, 1, f.fake.Calls(placestest.OpDetails))
}

func TestBatchDetails_RequestsFieldSet(t *testing.T) {
	f := newFixture(t)
	f.fake.AddPlace(places.Place{
		PlaceID:              "A",
		Name:                 "Joe's Pharmacy",
		FormattedPhoneNumber: "(555) 123-4567",
		OpeningHours:         &places.OpeningHours{WeekdayText: []string{"Monday: 9AM-5PM", "Tuesday: 9AM-5PM"}},
		Geometry:             &places.Geometry{Location: places.LatLng{Lat: 1, Lng: 2}},
	})

	results, err := f.svc.BatchDetails(context.Background(), []string{"A"})
	require.NoError(t, err)

	rec := results[0]
	require.NotNil(t, rec)
	assert.Equal(t, "(555) 123-4567", rec.Phone)
	assert.Equal(t, []string{"Monday: 9AM-5PM", "Tuesday: 9AM-5PM"}, rec.OpeningHours)
	assert.Equal(t, &places.LatLng{Lat: 1, Lng: 2}, rec.Geometry)

	fields := f.fake.LastQuery(placestest.OpDetails).Get("fields")
	for _, want := range []string{"name", "formatted_address", "rating", "formatted_phone_number", "website", "opening_hours", "types", "geometry"} {
		assert.Contains(t, fields, want)
	}
}

func TestPlaceDetails(t *testing.T) {
	f := newFixture(t)
	addPlaces(f, "A")

	rec, err := f.svc.PlaceDetails(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "Place A", rec.Name)

	_, err = f.svc.PlaceDetails(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProvider)

	_, err = f.svc.PlaceDetails(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBusinessDetails_MissThenHit(t *testing.T) {
	f := newFixture(t)
	f.fake.AddPlace(places.Place{
		PlaceID:              "ChIJ123",
		Website:              "https://joespharmacy.example",
		FormattedPhoneNumber: "(555) 123-4567",
		OpeningHours:         &places.OpeningHours{WeekdayText: []string{"Monday: 9AM-5PM"}},
		BusinessStatus:       "OPERATIONAL",
	})
	req := BusinessDetailsRequest{PlaceID: "ChIJ123", BusinessName: "Joe's Pharmacy"}
	start := f.clock.Now()

	details, err := f.svc.BusinessDetails(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, f.fake.Calls(placestest.OpDetails))
	assert.Equal(t, "https://joespharmacy.example", details.Website)
	assert.Equal(t, "(555) 123-4567", details.Phone)
	assert.Equal(t, []string{"Monday: 9AM-5PM"}, details.OpeningHours)
	assert.Equal(t, "OPERATIONAL", details.BusinessStatus)
	assert.True(t, details.FetchedAt.Equal(start))

	fields := f.fake.LastQuery(placestest.OpDetails).Get("fields")
	assert.Equal(t, "website,formatted_phone_number,opening_hours,business_status", fields)

	entry, err := f.store.Get(context.Background(), cache.TableBusiness, "details_ChIJ123")
	require.NoError(t, err)
	assert.WithinDuration(t, start.Add(180*24*time.Hour), entry.ExpiresAt, time.Second)

	f.clock.Advance(179 * 24 * time.Hour)

	again, err := f.svc.BusinessDetails(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, f.fake.Calls(placestest.OpDetails))
	assert.Equal(t, details.Website, again.Website)
	assert.Equal(t, details.OpeningHours, again.OpeningHours)
	assert.True(t, details.FetchedAt.Equal(again.FetchedAt))
}

func TestBusinessDetails_JoinerSurvivesFirstCallerCancel(t *testing.T) {
	f := newFixture(t)
	f.fake.AddPlace(places.Place{PlaceID: "ChIJ123", Website: "https://joespharmacy.example"})
	req := BusinessDetailsRequest{PlaceID: "ChIJ123"}

	release := f.fake.Block(placestest.OpDetails)
	defer release()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := f.svc.BusinessDetails(firstCtx, req)
		firstDone <- err
	}()
	require.Eventually(t, func() bool { return f.fake.Calls(placestest.OpDetails) == 1 }, time.Second, time.Millisecond)

	type result struct {
		details *places.BusinessDetails
		err     error
	}
	joinerDone := make(chan result, 1)
	go func() {
		d, err := f.svc.BusinessDetails(context.Background(), req)
		joinerDone <- result{d, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	release()

	got := <-joinerDone
	require.NoError(t, got.err)
	assert.Equal(t, "https://joespharmacy.example", got.details.Website)
	<-firstDone
	assert.Equal(t, 1, f.fake.Calls(placestest.OpDetails))
}

func TestBusinessDetails_ExpiredRowIsMiss(t *testing.T) {
	f := newFixture(t)
	addPlaces(f, "A")
	req := BusinessDetailsRequest{PlaceID: "A"}

	_, err := f.svc.BusinessDetails(context.Background(), req)
	require.NoError(t, err)

	f.clock.Advance(181 * 24 * time.Hour)

	_, err = f.svc.BusinessDetails(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.fake.Calls(placestest.OpDetails))
}

func TestBusinessDetails_MissingPlaceID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BusinessDetails(context.Background(), BusinessDetailsRequest{BusinessName: "Joe's"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, f.fake.TotalCalls())
}

func TestBusinessDetails_ProviderError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BusinessDetails(context.Background(), BusinessDetailsRequest{PlaceID: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), places.StatusNotFound)

	_, err = f.store.Get(context.Background(), cache.TableBusiness, "details_missing")
	assert.True(t, cache.IsNotFound(err))
}

func TestBusinessDetails_CacheWriteFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	addPlaces(f, "A")

	layer := mock.NewMockLayer("broken")
	layer.UpsertFunc = func(ctx context.Context, table cache.Table, entry cache.CacheEntry) error {
		return errors.New("disk full")
	}
	f.svc.store = layer

	details, err := f.svc.BusinessDetails(context.Background(), BusinessDetailsRequest{PlaceID: "A"})
	require.NoError(t, err)
	assert.NotNil(t, details)
	assert.Equal(t, 1, layer.UpsertCalls())
}
