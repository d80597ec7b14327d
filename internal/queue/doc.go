// Package queue implements the embedded message-queue backend: named queues
// with leased (visibility-timeout) delivery, delayed enqueue, per-message
// receive counts, long-poll receives, purge, stats, and listing for the
// admin surface. Dead-letter queues are ordinary queues; routing into them is
// the dispatcher's job.
//
// # Keyspace
//
// All keys are prefixed with q/{queue}/:
//
//	msg/{id}                     - message record (attrs header + payload + crc)
//	avail/{priority}/{id}        - availability index, dequeue order
//	delay/{ready_at_ms}/{id}     - delayed messages awaiting promotion
//	lease/{id}                   - active lease (receipt, expiry, priority)
//	lease_idx/{expires_ms}/{id}  - lease expiry index for reclaim scans
//	receipt/{handle}             - receipt handle -> message id
//	rcount/{id}                  - receive count, survives lease churn
//
// # Lifecycle
//
//  1. Enqueue: msg written; indexed by priority, or by ready time if delayed
//  2. Receive: due delays promoted, expired leases reclaimed, then messages
//     leased (receive count incremented, receipt handle issued)
//  3. Delete: message acknowledged and removed while the lease is live
//  4. Expiry: an undeleted lease lapses and the message becomes receivable
//     again - at-least-once delivery, consumers must be idempotent
//
// Receives long-poll: an empty queue blocks the caller up to the wait window
// on a close-and-replace notify channel pulsed by Enqueue.
package queue
