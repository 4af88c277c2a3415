// Package events carries task lifecycle notifications out of the scheduler.
//
// The scheduler emits a TaskEvent on every status transition without knowing
// who listens. Handlers registered on an InMemoryEventEmitter receive them in
// registration order; RedisPublisher is a handler that fans events out to
// other server instances over Redis pub/sub.
package events
