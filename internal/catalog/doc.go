// Package catalog holds the fixed device vocabulary the relay accepts.
//
// A Catalog maps logical device names ("MainFan") to Tuya control-point
// codes ("switch_1") and carries the closed set of state tokens clients may
// request. It is built once from configuration and never mutated, so
// lookups are safe from any number of goroutines without locking.
package catalog
