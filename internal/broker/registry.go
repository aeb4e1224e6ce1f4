package broker

import (
	"github.com/quantarc/quantarc/pkg/errors"
)

type VenueType string

const (
	VenueSimulated    VenueType = "simulated"
	VenueBinancePaper VenueType = "binance-paper"
	VenueBinanceLive  VenueType = "binance-live"
)

type VenueInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	IsSimulated bool   `json:"isSimulated"`
}

var venueRegistry = map[VenueType]VenueInfo{
	VenueSimulated: {
		Name:        string(VenueSimulated),
		DisplayName: "Simulated",
		Description: "Deterministic matching engine replaying historical bars for backtesting",
		IsSimulated: true,
	},
	VenueBinancePaper: {
		Name:        string(VenueBinancePaper),
		DisplayName: "Binance Testnet",
		Description: "Binance testnet for paper trading cryptocurrency without real funds",
		IsSimulated: false,
	},
	VenueBinanceLive: {
		Name:        string(VenueBinanceLive),
		DisplayName: "Binance Live",
		Description: "Binance live environment for real-funds cryptocurrency trading",
		IsSimulated: false,
	},
}

// GetSupportedVenues returns the names of all registered venue types.
func GetSupportedVenues() []string {
	venues := make([]string, 0, len(venueRegistry))
	for venueType := range venueRegistry {
		venues = append(venues, string(venueType))
	}

	return venues
}

// GetVenueInfo returns metadata for a specific venue type.
func GetVenueInfo(venueName string) (VenueInfo, error) {
	info, exists := venueRegistry[VenueType(venueName)]
	if !exists {
		return VenueInfo{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported venue: %s", venueName)
	}

	return info, nil
}
