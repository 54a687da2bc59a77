// Package session implements the EMS session manager.
//
// A Manager owns one logical connection to an EMS server. Each call to
// ConnectWithCredential or ConnectWithStoredToken starts a new attempt that
// dials the transport, logs in and then dispatches inbound frames:
//
//	authenticate → login result, token stored or removed
//	config       → configuration snapshot replaced, EventConfigChanged
//	data         → telemetry merged for devices known to the config
//	notification → forwarded to the notify.Sink
//
// All frames, transport errors and the login deadline of an attempt are
// handled on a single goroutine. Exactly one status event is emitted per
// attempt; later outcomes of the same attempt only change state.
package session
