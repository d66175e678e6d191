// Package redis mirrors the in-memory latest-price cache into a Redis
// hash for consumption by services outside the streamer process.
package redis
