// Package feed implements the upstream market-data feed client.
//
// The feed manager:
//   - Maintains one authenticated WebSocket connection to the feed
//   - Owns the subscribed-ticker set and pushes subscribe/unsubscribe deltas
//   - Reconnects with capped exponential backoff and replays the full
//     subscription set, since the feed forgets subscriptions across connects
//   - Writes every trade tick into the price cache and offers it to each
//     registered sink without blocking the read loop
package feed
