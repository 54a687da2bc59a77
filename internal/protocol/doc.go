// Package protocol defines the JSON messages exchanged with an EMS server
// and their conversion into the client-side model.
//
// Every frame is a single JSON object. Its top-level keys select what the
// frame carries, and one frame may carry several of them:
//
//	authenticate  login request / login response
//	config        full configuration snapshot
//	data          channel values, grouped by device id
//	notification  server message for the user
//	subscribe     nature subscription (client to server)
package protocol
