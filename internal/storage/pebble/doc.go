// Package pebblestore wraps a Pebble database with the durability policy and
// small helpers the pipeline needs: point reads that copy values out, batched
// writes honoring the configured fsync mode, and bounded prefix iteration for
// the queue, failure-log, and order keyspaces.
package pebblestore
