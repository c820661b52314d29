package world

import (
	"cityhaul.ai/internal/sim/items"
)

// Storage is a delivery facility. Besides its location it keeps per-team
// delivered-credit boxes: returned partial deliveries and poster payouts are
// credited here for the owning team to retrieve.
type Storage struct {
	name string
	Lat  float64
	Lon  float64

	delivered map[string]*items.Box
}

func NewStorage(name string, lat, lon float64) *Storage {
	return &Storage{name: name, Lat: lat, Lon: lon, delivered: map[string]*items.Box{}}
}

func (s *Storage) Name() string { return s.name }

// AddDelivered credits box to team's stock at this storage. Implements
// jobs.DeliveredSink.
func (s *Storage) AddDelivered(team string, box *items.Box) {
	cur, ok := s.delivered[team]
	if !ok {
		cur = items.NewBox()
		s.delivered[team] = cur
	}
	cur.Add(box)
}

// Delivered returns team's credit box at this storage (nil-safe reads).
func (s *Storage) Delivered(team string) *items.Box {
	return s.delivered[team]
}
