package model

import (
	"encoding/json"
	"testing"
)

func TestTelemetry_Merge(t *testing.T) {
	tel := Telemetry{}

	tel.Merge("ess0", map[string]any{"Soc": 50.0, "ActivePower": 1200.0})
	tel.Merge("ess0", map[string]any{"Soc": 51.0, "GridMode": "ON_GRID"})

	dev := tel["ess0"]
	if len(dev) != 3 {
		t.Fatalf("len(channels) = %d, want 3", len(dev))
	}
	if dev["Soc"] != 51.0 {
		t.Errorf("Soc = %v, want 51", dev["Soc"])
	}
	if dev["ActivePower"] != 1200.0 {
		t.Errorf("ActivePower = %v, want 1200 (kept from first update)", dev["ActivePower"])
	}
	if dev["GridMode"] != "ON_GRID" {
		t.Errorf("GridMode = %v, want ON_GRID", dev["GridMode"])
	}
}

func TestTelemetry_Clone(t *testing.T) {
	tel := Telemetry{"meter0": {"ActivePower": 10.0}}
	cp := tel.Clone()

	cp["meter0"]["ActivePower"] = 20.0
	cp["meter1"] = map[string]any{}

	if tel["meter0"]["ActivePower"] != 10.0 {
		t.Error("clone shares channel map with original")
	}
	if _, ok := tel["meter1"]; ok {
		t.Error("clone shares device map with original")
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := NewConfig()
	cfg.Devices["ess0"] = Device{Name: "ess0", Natures: []string{"Ess"}}
	cfg.Persistences = []Persistence{&InfluxdbPersistence{IP: "10.0.0.5"}}

	cp := cfg.Clone()
	cp.Devices["ess0"].Natures[0] = "Meter"
	cp.Persistences[0].(*InfluxdbPersistence).IP = "changed"

	if cfg.Devices["ess0"].Natures[0] != "Ess" {
		t.Error("clone shares natures slice")
	}
	if cfg.Persistences[0].(*InfluxdbPersistence).IP != "10.0.0.5" {
		t.Error("clone shares persistence entry")
	}
	if !cp.HasDevice("ess0") || cp.HasDevice("ess1") {
		t.Error("HasDevice mismatch on clone")
	}
}

func TestRawPersistence_MarshalJSON(t *testing.T) {
	raw := json.RawMessage(`{"class":"io.openems.Other","path":"/var/lib","extra":[1,2]}`)
	p := &RawPersistence{ClassName: "io.openems.Other", Raw: raw}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("marshal = %s, want original %s", data, raw)
	}
}

func TestInfluxdbPersistence_MarshalJSON(t *testing.T) {
	p := &InfluxdbPersistence{IP: "10.0.0.5", Username: "u", Password: "p", Fems: 7.0}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back["class"] != InfluxdbPersistenceClass {
		t.Errorf("class = %v, want %s", back["class"], InfluxdbPersistenceClass)
	}
	if back["ip"] != "10.0.0.5" {
		t.Errorf("ip = %v, want 10.0.0.5", back["ip"])
	}
}
