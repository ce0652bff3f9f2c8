// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package queue is the message transport between the queue producer and the
reconciliation consumer.

Two modes share one API:

  - nats: NATS JetStream through Watermill. The stream is provisioned by
    StreamInitializer; an EmbeddedServer can run the broker in-process.
  - memory: Watermill's GoChannel, for tests and single-process demos. Nothing
    survives a restart.

Delivery is at-least-once. Every task message carries the deterministic id
"<metadata id>:<attempt>", set as Nats-Msg-Id, so a republished attempt is
dropped by JetStream inside the duplicate window and recognised by the
consumer outside it.

The Router adds panic recovery, in-place retries for handler errors and a
poison topic for payloads that can never be processed. Index failures are not
handler errors: the reconciliation engine classifies them and requeues
through the retry topic.
*/
package queue
