// Package model defines the client-side view of an EMS server.
//
// Conventions:
//   - Device ids and channel ids are the server's string identifiers
//   - Things and scheduler payloads are opaque JSON, never interpreted
//   - Channel values are whatever the JSON decoder produced (float64, string, bool, nil, ...)
package model
