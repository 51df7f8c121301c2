package pricing

import (
	"fmt"
	"math"

	"github.com/poolup/carpool/pkg/common"
	"github.com/poolup/carpool/pkg/config"
	"github.com/poolup/carpool/pkg/geo"
)

// Time-of-day bands. Weekday peaks and a late-night bump; everything else is
// the off-peak baseline.
const (
	BandMorningPeak = "morning_peak" // 07:00-08:59
	BandEveningPeak = "evening_peak" // 17:00-19:59
	BandLateNight   = "late_night"   // 23:00-04:59
	BandOffPeak     = "off_peak"
)

var bandMultipliers = map[string]float64{
	BandMorningPeak: 1.25,
	BandEveningPeak: 1.25,
	BandLateNight:   1.15,
	BandOffPeak:     1.0,
}

// Engine computes zone-based contribution quotes. Pure: the zone snapshot is
// injected and every output is a deterministic function of the input.
type Engine struct {
	cfg config.PricingConfig
}

// NewEngine creates a pricing engine with the given rate configuration.
func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Quote computes the suggested contribution and its ±10% band for a trip.
// Both endpoints must resolve to a zone or the quote fails with
// OutOfServiceArea.
func (e *Engine) Quote(zones []Zone, input QuoteInput) (*Result, error) {
	pickup := resolveZone(zones, geo.Point{Latitude: input.PickupLatitude, Longitude: input.PickupLongitude})
	if pickup == nil {
		return nil, common.NewOutOfServiceAreaError("pickup location is outside the service area")
	}
	dest := resolveZone(zones, geo.Point{Latitude: input.DestinationLatitude, Longitude: input.DestinationLongitude})
	if dest == nil {
		return nil, common.NewOutOfServiceAreaError("destination is outside the service area")
	}

	result := &Result{
		PickupZoneID:        pickup.ID,
		PickupZoneName:      pickup.DisplayName,
		DestinationZoneID:   dest.ID,
		DestinationZoneName: dest.DisplayName,
		Multiplier:          1.0,
		TimeOfDayBand:       BandOffPeak,
	}

	switch {
	case pickup.ID == dest.ID:
		result.IsWithinZone = true
		result.FlatRate = e.cfg.WithinZoneFlatRate
		result.SuggestedContribution = round2(e.cfg.WithinZoneFlatRate)
		result.Description = fmt.Sprintf("Ride within %s (flat rate)", pickup.DisplayName)

	case pickup.IsAirport || dest.IsAirport:
		result.IsAirportTrip = true
		result.FlatRate = e.cfg.AirportFlatRate
		result.SuggestedContribution = round2(e.cfg.AirportFlatRate)
		result.Description = fmt.Sprintf("Airport trip: %s to %s (flat rate)", pickup.DisplayName, dest.DisplayName)

	default:
		band, multiplier := timeOfDayBand(input.RequestTime.Hour())
		result.TimeOfDayBand = band
		result.Multiplier = multiplier
		result.ZoneExitFee = e.cfg.BaseZoneFee
		result.DistanceCost = round2(input.DistanceMiles * e.cfg.PerMileRate)
		result.TimeCost = round2(float64(input.DurationMinutes) * e.cfg.PerMinuteRate)

		subtotal := e.cfg.BaseZoneFee + input.DistanceMiles*e.cfg.PerMileRate + float64(input.DurationMinutes)*e.cfg.PerMinuteRate
		result.SuggestedContribution = round2(subtotal * multiplier)
		result.Description = fmt.Sprintf("%s to %s, %.1f mi / %d min", pickup.DisplayName, dest.DisplayName, input.DistanceMiles, input.DurationMinutes)
	}

	band := e.cfg.ContributionBandPct
	result.MinContribution = round2(result.SuggestedContribution * (1 - band))
	result.MaxContribution = round2(result.SuggestedContribution * (1 + band))

	return result, nil
}

// WithinBand reports whether an offered contribution sits inside the quoted
// ±10% band.
func (e *Engine) WithinBand(result *Result, offered float64) bool {
	return offered >= result.MinContribution && offered <= result.MaxContribution
}

// resolveZone returns the first zone containing the point, lowest priority
// value first. Nil when no zone contains it.
func resolveZone(zones []Zone, p geo.Point) *Zone {
	var match *Zone
	for i := range zones {
		z := &zones[i]
		if !geo.PointInPolygon(p, z.Polygon) {
			continue
		}
		if match == nil || z.Priority < match.Priority {
			match = z
		}
	}
	return match
}

func timeOfDayBand(hour int) (string, float64) {
	var band string
	switch {
	case hour >= 7 && hour < 9:
		band = BandMorningPeak
	case hour >= 17 && hour < 20:
		band = BandEveningPeak
	case hour >= 23 || hour < 5:
		band = BandLateNight
	default:
		band = BandOffPeak
	}
	return band, bandMultipliers[band]
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
