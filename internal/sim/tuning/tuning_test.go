package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte("round_rate_hz: 10\njob_generation:\n  rate: 0.5\nstorages:\n  - name: depot\n    lat: 1.5\n    lon: -2.5\nresource_nodes:\n  - name: vein\n    item: copper\n    lat: 3.5\n    lon: -4.5\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.RoundRateHz != 10 {
		t.Fatalf("RoundRateHz = %d, want 10", tune.RoundRateHz)
	}
	if tune.JobGen.Rate != 0.5 {
		t.Fatalf("JobGen.Rate = %v, want 0.5", tune.JobGen.Rate)
	}
	if len(tune.Storages) != 1 || tune.Storages[0].Name != "depot" {
		t.Fatalf("Storages = %+v", tune.Storages)
	}
	if len(tune.ResourceNodes) != 1 || tune.ResourceNodes[0].Item != "copper" {
		t.Fatalf("ResourceNodes = %+v", tune.ResourceNodes)
	}
	// Untouched keys keep their defaults.
	if tune.TotalSteps != Defaults().TotalSteps {
		t.Fatalf("TotalSteps = %d, want default", tune.TotalSteps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("round_rate_hz: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed yaml must error")
	}
}
