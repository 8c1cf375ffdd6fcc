// Package ledger implements the per-user quota contract.
//
// A Ledger gates lookups (HasAccess), meters them (Consume) and restores the
// daily allowance (RefillIfDue). It is shared by the conversation controller
// and the refill scheduler, which call it concurrently; each operation maps to
// a single conditional store statement so no extra locking is needed:
//
//	led := ledger.New(st, ledger.Options{AdminID: "42", FreeRequests: 3})
//	ok, err := led.HasAccess(ctx, "1001")
//
// The admin identity bypasses every check and never gets a stored record.
// Store failures are returned wrapped in ErrStoreUnavailable.
package ledger
