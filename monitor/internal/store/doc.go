// Package store keeps the latest poll cycle and a bounded history of
// dispatched alerts in memory for the status API and the live stream.
package store
