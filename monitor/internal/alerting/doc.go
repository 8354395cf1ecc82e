// Package alerting is the poll loop. Each cycle it reads every metric of the
// plan, classifies the readings, applies the per-key cooldown and hands the
// alerts that survive to a notify.Sink.
//
// The Poller exclusively owns the alert State; plan changes arrive through
// Reload and are applied between cycles.
package alerting
