// Package client provides the Go SDK for the civicledger audit service.
// It wraps the HTTP API exposed by auditd: appending audit entries, reading
// the chain tip and individual entries, and running an integrity
// verification. ledgerctl is built on this package.
package client
