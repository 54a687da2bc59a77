package model

import (
	"encoding/json"
	"maps"
	"time"
)

// InfluxdbPersistenceClass is the server class name of the InfluxDB-backed persistence.
const InfluxdbPersistenceClass = "io.openems.impl.persistence.influxdb.InfluxdbPersistence"

// LoopbackIP is the address the server advertises when InfluxDB runs next to it.
const LoopbackIP = "127.0.0.1"

// -----------------------------------------------------------------------------
// Config Snapshot
// -----------------------------------------------------------------------------

// Device is a server-side device and the natures it implements.
type Device struct {
	Name    string   // Device id
	Natures []string // Capability identifiers, in server order
}

// Config is the most recent configuration snapshot received from the server.
// A new config message always replaces it as a whole.
type Config struct {
	Devices      map[string]Device
	Things       json.RawMessage // Opaque
	Scheduler    json.RawMessage // Opaque
	Persistences []Persistence
}

// NewConfig returns an empty config snapshot.
func NewConfig() Config {
	return Config{Devices: make(map[string]Device)}
}

// HasDevice reports whether id is a device of this config.
func (c Config) HasDevice(id string) bool {
	_, ok := c.Devices[id]
	return ok
}

// Clone returns a copy that shares no mutable state with c.
func (c Config) Clone() Config {
	out := Config{
		Devices:      make(map[string]Device, len(c.Devices)),
		Things:       cloneRaw(c.Things),
		Scheduler:    cloneRaw(c.Scheduler),
		Persistences: make([]Persistence, 0, len(c.Persistences)),
	}
	for id, d := range c.Devices {
		out.Devices[id] = Device{Name: d.Name, Natures: append([]string(nil), d.Natures...)}
	}
	for _, p := range c.Persistences {
		out.Persistences = append(out.Persistences, p.clonePersistence())
	}
	return out
}

// Persistence is one entry of the server's persistence list.
type Persistence interface {
	// Class returns the server class name of the entry.
	Class() string

	clonePersistence() Persistence
}

// InfluxdbPersistence is the typed InfluxDB persistence entry.
type InfluxdbPersistence struct {
	IP       string
	Username string
	Password string
	Fems     any // Opaque FEMS identifier
}

// Class implements Persistence.
func (p *InfluxdbPersistence) Class() string { return InfluxdbPersistenceClass }

func (p *InfluxdbPersistence) clonePersistence() Persistence {
	cp := *p
	return &cp
}

// MarshalJSON renders the entry in the server's wire shape.
func (p *InfluxdbPersistence) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Class    string `json:"class"`
		IP       string `json:"ip"`
		Username string `json:"username"`
		Password string `json:"password"`
		Fems     any    `json:"fems"`
	}{InfluxdbPersistenceClass, p.IP, p.Username, p.Password, p.Fems})
}

// RawPersistence is any persistence entry of a class this client does not know.
// The original JSON object is kept byte for byte.
type RawPersistence struct {
	ClassName string
	Raw       json.RawMessage
}

// Class implements Persistence.
func (p *RawPersistence) Class() string { return p.ClassName }

func (p *RawPersistence) clonePersistence() Persistence {
	return &RawPersistence{ClassName: p.ClassName, Raw: cloneRaw(p.Raw)}
}

// MarshalJSON returns the original bytes.
func (p *RawPersistence) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

// -----------------------------------------------------------------------------
// Telemetry Snapshot
// -----------------------------------------------------------------------------

// Telemetry maps device id → channel id → latest channel value.
type Telemetry map[string]map[string]any

// Merge writes channels into the device entry, overwriting existing channel
// values and adding new ones.
func (t Telemetry) Merge(deviceID string, channels map[string]any) {
	dev, ok := t[deviceID]
	if !ok {
		dev = make(map[string]any, len(channels))
		t[deviceID] = dev
	}
	maps.Copy(dev, channels)
}

// Clone returns a two-level copy of t.
func (t Telemetry) Clone() Telemetry {
	out := make(Telemetry, len(t))
	for id, channels := range t {
		out[id] = maps.Clone(channels)
	}
	return out
}

// TelemetryUpdate is one accepted per-device update.
type TelemetryUpdate struct {
	Connection string         // Connection name
	DeviceID   string         // Device id (known to the current config)
	Channels   map[string]any // Channel values carried by this update
	ReceivedAt time.Time      // Local receive time of the wire message
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}
