// Package control provides runtime debug introspection for a port: a
// named probe registry a caller can poll for point-in-time state (link,
// queue counts, active flow count) without reaching into port.Port's
// private fields.
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
