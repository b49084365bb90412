package service

import (
	"strings"

	"github.com/retailops/retailops-backend/pkg/errors"
)

// Delivery modes
const (
	ModeCourier  = "courier"
	ModePickup   = "pickup"
	ModeDropoff  = "dropoff"
	ModeInternal = "internal"
)

var deliveryModes = map[string]string{
	"courier":    ModeCourier,
	"ship":       ModeCourier,
	"shipping":   ModeCourier,
	"pickup":     ModePickup,
	"pick_up":    ModePickup,
	"collection": ModePickup,
	"dropoff":    ModeDropoff,
	"drop_off":   ModeDropoff,
	"drop":       ModeDropoff,
	"internal":   ModeInternal,
	"fleet":      ModeInternal,
	"van":        ModeInternal,
}

// NormalizeDeliveryMode maps free-form delivery mode input onto the fixed
// enum. Unknown values are a validation error, not a silent default.
func NormalizeDeliveryMode(raw string) (string, error) {
	mode, ok := deliveryModes[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", errors.Validation(map[string]string{
			"delivery_mode": "must be one of: courier, pickup, dropoff, internal",
		})
	}
	return mode, nil
}

// CarrierForMode derives the carrier label stamped on parcels and labels.
func CarrierForMode(mode string) string {
	switch mode {
	case ModeCourier:
		return "external_courier"
	case ModePickup:
		return "store_pickup"
	case ModeDropoff:
		return "depot_dropoff"
	case ModeInternal:
		return "internal_fleet"
	default:
		return mode
	}
}
