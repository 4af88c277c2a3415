// Package mocks provides test doubles for interfaces shared across packages.
// Each mock dispatches to an optional Fn field and otherwise returns its
// configured defaults.
package mocks
