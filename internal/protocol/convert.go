package protocol

import (
	"encoding/json"

	"github.com/rickgao/ems-client/internal/model"
)

// ToModel builds a fresh config snapshot from the payload.
// InfluxDB entries that advertise the loopback address get host instead, since
// 127.0.0.1 is only meaningful on the server itself.
// Entries of other classes, and entries that fail to decode, pass through untouched.
func (p *ConfigPayload) ToModel(host string) model.Config {
	cfg := model.NewConfig()
	if p == nil {
		return cfg
	}

	for id, natures := range p.Devices {
		cfg.Devices[id] = model.Device{
			Name:    id,
			Natures: append([]string(nil), natures...),
		}
	}

	if p.Things != nil {
		cfg.Things = append(json.RawMessage(nil), p.Things...)
	}
	if p.Scheduler != nil {
		cfg.Scheduler = append(json.RawMessage(nil), p.Scheduler...)
	}

	if p.Persistence != nil {
		cfg.Persistences = make([]model.Persistence, 0, len(p.Persistence))
	}
	for _, raw := range p.Persistence {
		cfg.Persistences = append(cfg.Persistences, convertPersistence(raw, host))
	}

	return cfg
}

func convertPersistence(raw json.RawMessage, host string) model.Persistence {
	var probe classProbe
	_ = json.Unmarshal(raw, &probe)

	passthrough := &model.RawPersistence{
		ClassName: probe.Class,
		Raw:       append(json.RawMessage(nil), raw...),
	}
	if probe.Class != model.InfluxdbPersistenceClass {
		return passthrough
	}

	var wire influxdbWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return passthrough
	}

	return &model.InfluxdbPersistence{
		IP:       RewriteLoopback(wire.IP, host),
		Username: wire.Username,
		Password: wire.Password,
		Fems:     wire.Fems,
	}
}

// RewriteLoopback returns host when ip is the loopback address and host is set.
func RewriteLoopback(ip, host string) string {
	if ip == model.LoopbackIP && host != "" {
		return host
	}
	return ip
}
