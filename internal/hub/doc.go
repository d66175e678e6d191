// Package hub implements the downstream client registry and broadcaster.
//
// The hub:
//   - Registers WebSocket clients and seeds each with a cache snapshot
//   - Tracks per-client ticker interest and reports changes to the
//     subscription coordinator
//   - Fans each tick out to interested clients through per-client send
//     queues, so one slow socket never delays another
//   - Prunes dead clients after a broadcast, never mid-iteration
package hub
