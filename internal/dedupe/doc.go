// Package dedupe keeps a bounded, expiring set of update keys so that an
// update redelivered by a chat network is answered only once.
package dedupe
