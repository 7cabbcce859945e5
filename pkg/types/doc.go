// Package types defines the IPsec configuration objects, statistics
// snapshots and error values shared by the daemon's packages.
//
// SAs are identified by SPI and policies by SPID (direction, source and
// destination selectors). Sentinel errors live in errors.go and are
// matched with errors.Is.
package types
