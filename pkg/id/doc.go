// Package id generates 128-bit, lexicographically sortable identifiers used
// for queue messages and failure-log records. An ID is 16 bytes big-endian:
// [8 bytes unix-ms timestamp][8 bytes per-process sequence], so pebble keys
// built from IDs iterate in creation order.
package id
