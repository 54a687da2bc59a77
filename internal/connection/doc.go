// Package connection implements the WebSocket transport of the session client.
//
// A Client is one duplex channel:
//   - Send writes a text frame (ErrNotConnected once the channel is gone)
//   - Messages delivers every inbound frame with its local receive time
//   - Errors delivers the single terminal cause: ErrClosedByPeer for an orderly
//     close, ErrStaleConnection for a dead heartbeat, or the read error
//
// A Dialer opens Clients; the session layer depends only on these interfaces.
package connection
