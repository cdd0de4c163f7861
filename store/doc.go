// Package store implements the dispatch orchestrator.
//
// A Store owns one state value. Send runs an action through the middleware
// pipeline into the reducer, then hands the returned effect to the executor.
// All reductions for a store are serialized: the goroutine that finds the
// store idle drains its queue, and sends made meanwhile (from other
// goroutines, middlewares, observers or Send effects) are queued behind the
// current action instead of blocking.
//
// Effects run on their own goroutines. Their follow-up actions travel back
// over a channel and re-enter the pipeline in completion order. Effects with
// an ID run inside a cancellation scope; once a scope is cancelled, any
// action it produced is dropped, even if it was already queued.
//
// Usage:
//
//	s, err := store.New(CounterState{Max: 10}, counterReducer,
//		store.WithLogger[CounterState, Action](logger),
//		store.WithMiddleware(middleware.Logging[CounterState, Action](logger)),
//	)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	s.Send(Increment{})
//	fmt.Println(s.State().Count)
package store
