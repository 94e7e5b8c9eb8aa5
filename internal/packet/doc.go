// Package packet owns the member wire contract.
//
// Ownership boundary:
// - packet value and flag bits
// - fixed header encode/decode
// - the resumable single-packet Reader used by the inbound decoder
package packet
