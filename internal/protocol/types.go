package protocol

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Envelope is a decoded wire frame. A nil field means the key was absent.
type Envelope struct {
	Authenticate *Authenticate             `json:"authenticate,omitempty"`
	Config       *ConfigPayload            `json:"config,omitempty"`
	Data         map[string]map[string]any `json:"data,omitempty"`
	Notification *NotificationPayload      `json:"notification,omitempty"`
	Subscribe    *string                   `json:"subscribe,omitempty"`

	// Skipped names the concerns, or data.<device> entries, that did not
	// decode and were left out.
	Skipped []string `json:"-"`
}

// Authenticate is both the login request and the login response.
type Authenticate struct {
	Password *string `json:"password,omitempty"`
	Token    *string `json:"token,omitempty"`
	Username *string `json:"username,omitempty"`
}

// UnmarshalJSON records which keys are present. A present null decodes as
// an empty string.
func (a *Authenticate) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Authenticate
	for key, dst := range map[string]**string{
		"password": &out.Password,
		"token":    &out.Token,
		"username": &out.Username,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("authenticate.%s: %w", key, err)
		}
		if v == nil {
			v = new(string)
		}
		*dst = v
	}
	*a = out
	return nil
}

// HasToken reports whether the token key was present.
func (a *Authenticate) HasToken() bool { return a != nil && a.Token != nil }

// HasUsername reports whether the username key was present.
func (a *Authenticate) HasUsername() bool { return a != nil && a.Username != nil }

// ConfigPayload is the raw configuration snapshot.
type ConfigPayload struct {
	Devices     map[string][]string `json:"_devices,omitempty"`
	Things      json.RawMessage     `json:"things,omitempty"`
	Scheduler   json.RawMessage     `json:"scheduler,omitempty"`
	Persistence []json.RawMessage   `json:"persistence,omitempty"`
}

// NotificationPayload is a server message for the user.
type NotificationPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// influxdbWire is the wire shape of the InfluxDB persistence entry.
type influxdbWire struct {
	Class    string `json:"class"`
	IP       string `json:"ip"`
	Username string `json:"username"`
	Password string `json:"password"`
	Fems     any    `json:"fems"`
}

// classProbe extracts only the class of a persistence entry.
type classProbe struct {
	Class string `json:"class"`
}

// Decode parses one frame. Each concern decodes on its own and telemetry
// decodes per device, so a malformed entry drops only itself and is listed
// in Skipped. Only a frame that is not a JSON object is an error.
func Decode(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}

	var env Envelope
	decodeField(fields, "authenticate", &env.Authenticate, &env.Skipped)
	decodeField(fields, "config", &env.Config, &env.Skipped)
	decodeField(fields, "notification", &env.Notification, &env.Skipped)
	decodeField(fields, "subscribe", &env.Subscribe, &env.Skipped)
	if raw, ok := fields["data"]; ok {
		env.Data = decodeData(raw, &env.Skipped)
	}
	slices.Sort(env.Skipped)
	return env, nil
}

// decodeField unmarshals fields[key] into dst. dst is left untouched when
// the key is absent or does not decode.
func decodeField[T any](fields map[string]json.RawMessage, key string, dst *T, skipped *[]string) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		*skipped = append(*skipped, key)
		return
	}
	*dst = v
}

// decodeData keeps every device whose channels decode to an object.
func decodeData(raw json.RawMessage, skipped *[]string) map[string]map[string]any {
	var devices map[string]json.RawMessage
	if err := json.Unmarshal(raw, &devices); err != nil {
		*skipped = append(*skipped, "data")
		return nil
	}

	var out map[string]map[string]any
	for id, channelsRaw := range devices {
		var channels map[string]any
		if err := json.Unmarshal(channelsRaw, &channels); err != nil || channels == nil {
			*skipped = append(*skipped, "data."+id)
			continue
		}
		if out == nil {
			out = make(map[string]map[string]any, len(devices))
		}
		out[id] = channels
	}
	return out
}

// Encode serialises an outbound frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// PasswordLogin builds {"authenticate":{"password":...}}.
func PasswordLogin(password string) Envelope {
	return Envelope{Authenticate: &Authenticate{Password: &password}}
}

// TokenLogin builds {"authenticate":{"token":...}}.
func TokenLogin(token string) Envelope {
	return Envelope{Authenticate: &Authenticate{Token: &token}}
}

// SubscribeMsg builds {"subscribe":tag}. An empty tag unsubscribes.
func SubscribeMsg(tag string) Envelope {
	return Envelope{Subscribe: &tag}
}
