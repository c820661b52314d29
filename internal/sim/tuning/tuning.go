package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	RoundRateHz int `yaml:"round_rate_hz"`
	TotalSteps  int `yaml:"total_steps"`

	// Jobs whose remaining window is at most this many steps are not worth
	// starting; the mediator skips them when arbitrating proposals.
	EligibilityWindowSteps int `yaml:"eligibility_window_steps"`

	// Movement per round, in degrees of lat/lon, and the radius within which
	// an agent counts as standing at a facility.
	SpeedDeg    float64 `yaml:"speed_deg"`
	AtRadiusDeg float64 `yaml:"at_radius_deg"`

	JobGen JobGen `yaml:"job_generation"`

	// Item types job requirements are drawn from.
	Items []string `yaml:"items"`
	// Delivery facilities of the map.
	Storages []StorageSpec `yaml:"storages"`
	// Resource gathering points shown to agents; drones re-broadcast
	// sightings to teammates.
	ResourceNodes []ResourceNodeSpec `yaml:"resource_nodes"`
}

type StorageSpec struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

type ResourceNodeSpec struct {
	Name string  `yaml:"name"`
	Item string  `yaml:"item"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

type JobGen struct {
	Rate      float64 `yaml:"rate"`
	RewardMin int     `yaml:"reward_min"`
	RewardMax int     `yaml:"reward_max"`
	WindowMin int     `yaml:"window_min"`
	WindowMax int     `yaml:"window_max"`
	TypesMin  int     `yaml:"types_min"`
	TypesMax  int     `yaml:"types_max"`
	AmountMin int     `yaml:"amount_min"`
	AmountMax int     `yaml:"amount_max"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:        "1.0",
		RoundRateHz:            4,
		TotalSteps:             1000,
		EligibilityWindowSteps: 100,
		SpeedDeg:               0.002,
		AtRadiusDeg:            0.0001,
		JobGen: JobGen{
			Rate:      0.08,
			RewardMin: 10,
			RewardMax: 40,
			WindowMin: 120,
			WindowMax: 400,
			TypesMin:  1,
			TypesMax:  3,
			AmountMin: 1,
			AmountMax: 5,
		},
		Items: []string{"iron", "coal", "copper", "stone", "crystal"},
		Storages: []StorageSpec{
			{Name: "storage1", Lat: 51.4776, Lon: -0.0015},
			{Name: "storage2", Lat: 51.5007, Lon: -0.1246},
			{Name: "storage3", Lat: 51.5136, Lon: -0.0983},
		},
		ResourceNodes: []ResourceNodeSpec{
			{Name: "node1", Item: "iron", Lat: 51.4894, Lon: -0.0542},
			{Name: "node2", Item: "coal", Lat: 51.5211, Lon: -0.0715},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
