// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the scheduling core. Implementations must surface uniqueness violations
// as ErrDuplicate: it is the only cross-runtime exclusion mechanism the
// lock service and the content inserts rely on.
package store
