package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/pkg/common"
	"github.com/poolup/carpool/pkg/config"
	"github.com/poolup/carpool/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.PricingConfig {
	return config.PricingConfig{
		WithinZoneFlatRate:  5.00,
		AirportFlatRate:     25.00,
		BaseZoneFee:         3.00,
		PerMileRate:         0.90,
		PerMinuteRate:       0.15,
		ContributionBandPct: 0.10,
	}
}

// Square zones on a simple grid: downtown around the origin, suburbs to the
// east, the airport to the north.
func testZones() []Zone {
	square := func(lat, lng float64) []geo.Point {
		return []geo.Point{
			{Latitude: lat - 0.05, Longitude: lng - 0.05},
			{Latitude: lat - 0.05, Longitude: lng + 0.05},
			{Latitude: lat + 0.05, Longitude: lng + 0.05},
			{Latitude: lat + 0.05, Longitude: lng - 0.05},
		}
	}
	return []Zone{
		{ID: uuid.New(), Name: "downtown", DisplayName: "Downtown", Priority: 10, Polygon: square(0, 0)},
		{ID: uuid.New(), Name: "eastside", DisplayName: "Eastside", Priority: 10, Polygon: square(0, 0.2)},
		{ID: uuid.New(), Name: "airport", DisplayName: "City Airport", IsAirport: true, Priority: 10, Polygon: square(0.2, 0)},
	}
}

func offPeak() time.Time {
	return time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
}

func TestQuote_WithinZoneFlatRate(t *testing.T) {
	engine := NewEngine(testConfig())

	result, err := engine.Quote(testZones(), QuoteInput{
		PickupLatitude: 0.01, PickupLongitude: 0.01,
		DestinationLatitude: -0.01, DestinationLongitude: -0.02,
		DistanceMiles: 1.2, DurationMinutes: 6,
		RequestTime: offPeak(),
	})
	require.NoError(t, err)

	assert.True(t, result.IsWithinZone)
	assert.False(t, result.IsAirportTrip)
	assert.Equal(t, 5.00, result.SuggestedContribution)
	assert.Equal(t, 4.50, result.MinContribution)
	assert.Equal(t, 5.50, result.MaxContribution)
	assert.Contains(t, result.Description, "Downtown")
}

func TestQuote_AirportFlatRateIgnoresDistance(t *testing.T) {
	engine := NewEngine(testConfig())

	short, err := engine.Quote(testZones(), QuoteInput{
		PickupLatitude: 0.01, PickupLongitude: 0.01,
		DestinationLatitude: 0.2, DestinationLongitude: 0.01,
		DistanceMiles: 3, DurationMinutes: 10,
		RequestTime: offPeak(),
	})
	require.NoError(t, err)

	long, err := engine.Quote(testZones(), QuoteInput{
		PickupLatitude: 0.01, PickupLongitude: 0.01,
		DestinationLatitude: 0.2, DestinationLongitude: 0.01,
		DistanceMiles: 30, DurationMinutes: 55,
		RequestTime: offPeak(),
	})
	require.NoError(t, err)

	assert.True(t, short.IsAirportTrip)
	assert.Equal(t, 25.00, short.SuggestedContribution)
	assert.Equal(t, short.SuggestedContribution, long.SuggestedContribution)
}

func TestQuote_CrossZoneBreakdown(t *testing.T) {
	engine := NewEngine(testConfig())

	result, err := engine.Quote(testZones(), QuoteInput{
		PickupLatitude: 0.01, PickupLongitude: 0.01,
		DestinationLatitude: 0.01, DestinationLongitude: 0.2,
		DistanceMiles: 10, DurationMinutes: 20,
		RequestTime: offPeak(),
	})
	require.NoError(t, err)

	assert.False(t, result.IsWithinZone)
	assert.False(t, result.IsAirportTrip)
	assert.Equal(t, 3.00, result.ZoneExitFee)
	assert.Equal(t, 9.00, result.DistanceCost)
	assert.Equal(t, 3.00, result.TimeCost)
	// 3 + 9 + 3 = 15.00 at the off-peak multiplier
	assert.Equal(t, BandOffPeak, result.TimeOfDayBand)
	assert.Equal(t, 15.00, result.SuggestedContribution)
	assert.Equal(t, 13.50, result.MinContribution)
	assert.Equal(t, 16.50, result.MaxContribution)
}

func TestQuote_PeakMultiplier(t *testing.T) {
	engine := NewEngine(testConfig())

	input := QuoteInput{
		PickupLatitude: 0.01, PickupLongitude: 0.01,
		DestinationLatitude: 0.01, DestinationLongitude: 0.2,
		DistanceMiles: 10, DurationMinutes: 20,
	}

	input.RequestTime = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	morning, err := engine.Quote(testZones(), input)
	require.NoError(t, err)
	assert.Equal(t, BandMorningPeak, morning.TimeOfDayBand)
	assert.Equal(t, 18.75, morning.SuggestedContribution) // 15.00 * 1.25

	input.RequestTime = time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	late, err := engine.Quote(testZones(), input)
	require.NoError(t, err)
	assert.Equal(t, BandLateNight, late.TimeOfDayBand)
	assert.Equal(t, 17.25, late.SuggestedContribution) // 15.00 * 1.15
}

func TestQuote_Deterministic(t *testing.T) {
	engine := NewEngine(testConfig())
	zones := testZones()

	input := QuoteInput{
		PickupLatitude: 0.01, PickupLongitude: 0.01,
		DestinationLatitude: 0.01, DestinationLongitude: 0.2,
		DistanceMiles: 7.3, DurationMinutes: 18,
		RequestTime: offPeak(),
	}

	first, err := engine.Quote(zones, input)
	require.NoError(t, err)
	second, err := engine.Quote(zones, input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQuote_OutOfServiceArea(t *testing.T) {
	engine := NewEngine(testConfig())

	_, err := engine.Quote(testZones(), QuoteInput{
		PickupLatitude: 5, PickupLongitude: 5,
		DestinationLatitude: 0.01, DestinationLongitude: 0.01,
		DistanceMiles: 2, DurationMinutes: 5,
		RequestTime: offPeak(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrOutOfServiceArea)
}

func TestQuote_OverlapResolvesByPriority(t *testing.T) {
	engine := NewEngine(testConfig())

	zones := testZones()
	// A higher-priority micro-zone inside downtown
	zones = append(zones, Zone{
		ID: uuid.New(), Name: "stadium", DisplayName: "Stadium District", Priority: 1,
		Polygon: []geo.Point{
			{Latitude: -0.02, Longitude: -0.02},
			{Latitude: -0.02, Longitude: 0.02},
			{Latitude: 0.02, Longitude: 0.02},
			{Latitude: 0.02, Longitude: -0.02},
		},
	})

	result, err := engine.Quote(zones, QuoteInput{
		PickupLatitude: 0.0, PickupLongitude: 0.0,
		DestinationLatitude: 0.01, DestinationLongitude: 0.2,
		DistanceMiles: 10, DurationMinutes: 20,
		RequestTime: offPeak(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Stadium District", result.PickupZoneName)
}

func TestWithinBand(t *testing.T) {
	engine := NewEngine(testConfig())

	result := &Result{MinContribution: 13.50, MaxContribution: 16.50}

	assert.True(t, engine.WithinBand(result, 13.50))
	assert.True(t, engine.WithinBand(result, 15.00))
	assert.True(t, engine.WithinBand(result, 16.50))
	assert.False(t, engine.WithinBand(result, 13.49))
	assert.False(t, engine.WithinBand(result, 16.51))
}

func TestZoneProviderSnapshotAccessors(t *testing.T) {
	loaded := time.Now()
	p := &ZoneProvider{zones: testZones(), loadedAt: loaded}

	assert.Len(t, p.Zones(), len(testZones()))
	assert.Equal(t, loaded, p.LoadedAt())
}
