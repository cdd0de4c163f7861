// Package effect describes side effects as plain values.
//
// An Effect is an immutable description of zero or more asynchronous
// computations that may yield follow-up actions. Constructing an Effect never
// starts any work: effects only run when a reducer returns them to a store,
// which hands them to its executor.
//
// The variants form a closed union:
//
//   - None: nothing to do
//   - Send: dispatch one action synchronously
//   - Task: run asynchronous work that may produce one action
//   - Merge: run children in parallel
//   - Concatenate: run children one after another
//   - Cancel / Cancellable: cancel or tag work by ID
//   - Debounce / Throttle / Delay: time-based scheduling
//   - Timeout / Retry / Catch: failure handling
//
// Map lifts an Effect[A] into an Effect[B]; reducer composition uses it to
// embed child actions into the parent action space.
//
// Example:
//
//	func reduce(state *State, action Action) effect.Effect[Action] {
//	    switch action.(type) {
//	    case Search:
//	        return effect.Debounce(300*time.Millisecond, searchID,
//	            effect.Future(func(ctx context.Context) (Action, error) {
//	                return fetch(ctx, state.Query)
//	            }),
//	        )
//	    }
//	    return effect.None[Action]()
//	}
package effect
