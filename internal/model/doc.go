// Package model defines the shared domain types: price ticks, alerts,
// and the events exchanged with downstream clients.
package model
