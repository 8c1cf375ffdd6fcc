// Package refill runs the background process that restores user credits.
//
// The Scheduler wakes up every interval (hourly by default), asks the ledger
// which users are below their allowance with a last refill at least one window
// old, and refills each of them. It never creates records for users it has not
// seen. Failures are logged and the next tick tries again.
//
//	sched := refill.New(led, time.Hour, logger)
//	go sched.Run(ctx)
//	defer sched.Stop()
package refill
