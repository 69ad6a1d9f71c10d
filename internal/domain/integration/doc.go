// Package integration contains the marketplace integration bounded context.
// It owns the order synchronization model shared by every transport that
// talks to an external sales channel.
//
// Key concepts:
//   - ChannelCode: an external marketplace (Naver Smart Store, Cafe24, Coupang)
//   - OrderRecord: one product order as persisted locally, keyed by (channel, external order id)
//   - SyncRequest / SyncProgress / SyncResult: the inbound command, its progress stream and terminal summary
//   - OrderFeed / OrderRelay: ports for the direct marketplace pipeline and the relayed pipeline
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
