// Package timetravel records a store's transitions and moves its live state
// to any recorded point.
//
//	dbg := timetravel.New[State, Action](timetravel.WithMaxEntries(500))
//	s, err := store.New(initial, reducer, store.WithObserver(dbg.Observer()))
//	if err != nil {
//		return err
//	}
//	dbg.Attach(s)
//
//	s.Send(A{})
//	s.Send(B{})
//	_ = dbg.StepBack() // live state is the state after A
//
// State types opt into structural diffing by implementing Diffable.
package timetravel
