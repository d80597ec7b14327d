// Package serverrun wires the runtime, dispatcher, monitor, and HTTP server
// into a running node and handles shutdown ordering.
package serverrun
