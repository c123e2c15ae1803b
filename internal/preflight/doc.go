// Package preflight runs environment checks before lockerindex touches the
// index or the locker.
//
// The package validates:
//   - Write permissions and free space in the index directory
//   - File descriptor limits
//   - Whether another process holds the index lock
//   - Whether the locker answers HTTP requests
//   - Whether the datastore can be opened
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Targets{IndexPath: dir, LockerURL: url})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
