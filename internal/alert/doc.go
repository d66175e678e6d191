// Package alert evaluates live price ticks against the set of active
// price alerts and runs the trigger sequence: a conditional store
// update decides the winner, then notifications go out per channel and
// connected clients receive an alert_triggered event.
//
// Evaluation is throttled per ticker and at most one evaluation per
// ticker runs at a time, so a burst of ticks costs a single pass over
// that ticker's alerts.
package alert
