// Package runtime assembles the node: one pebble database shared by the
// queue backend, order projections, the failure log, and analytics, plus the
// broadcast hub. The dispatcher and servers are layered on top by the server
// run wiring.
package runtime
