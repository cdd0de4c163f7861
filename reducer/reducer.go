// Package reducer defines pure state transition functions and the combinators
// used to compose feature reducers into an application reducer.
//
// A reducer mutates the state it is handed and returns an effect description.
// It must not start background work itself, and actions it does not handle
// must leave state untouched and return effect.None.
package reducer

import "github.com/on-the-ground/effect_ive_store/effect"

// Reducer computes the next state in place and describes the follow-up effects.
type Reducer[S, A any] interface {
	Reduce(state *S, action A) effect.Effect[A]
}

// Func adapts a plain function to Reducer.
type Func[S, A any] func(state *S, action A) effect.Effect[A]

func (f Func[S, A]) Reduce(state *S, action A) effect.Effect[A] {
	if e := f(state, action); e != nil {
		return e
	}
	return effect.None[A]()
}

// Empty returns a reducer that ignores every action.
func Empty[S, A any]() Reducer[S, A] {
	return Func[S, A](func(*S, A) effect.Effect[A] {
		return effect.None[A]()
	})
}

// Combine runs reducers in order against the same state and action. Each reducer
// observes the mutations of the ones before it; their effects are merged.
func Combine[S, A any](reducers ...Reducer[S, A]) Reducer[S, A] {
	return Func[S, A](func(state *S, action A) effect.Effect[A] {
		effects := make([]effect.Effect[A], 0, len(reducers))
		for _, r := range reducers {
			effects = append(effects, r.Reduce(state, action))
		}
		return effect.Merge(effects...)
	})
}

// Pullback lifts a child reducer into a parent state and action space.
//
// state selects the child state inside the parent. extract pulls the child action
// out of a parent action and reports false for parent actions the child does not
// own; embed wraps child actions produced by effects back into parent actions.
func Pullback[PS, PA, CS, CA any](
	child Reducer[CS, CA],
	state func(*PS) *CS,
	extract func(PA) (CA, bool),
	embed func(CA) PA,
) Reducer[PS, PA] {
	return Func[PS, PA](func(parent *PS, action PA) effect.Effect[PA] {
		childAction, ok := extract(action)
		if !ok {
			return effect.None[PA]()
		}
		return effect.Map(child.Reduce(state(parent), childAction), embed)
	})
}

// Optional is Pullback for child state that may be absent. state returns nil
// when the child does not exist, in which case the action is ignored.
func Optional[PS, PA, CS, CA any](
	child Reducer[CS, CA],
	state func(*PS) *CS,
	extract func(PA) (CA, bool),
	embed func(CA) PA,
) Reducer[PS, PA] {
	return Func[PS, PA](func(parent *PS, action PA) effect.Effect[PA] {
		childAction, ok := extract(action)
		if !ok {
			return effect.None[PA]()
		}
		childState := state(parent)
		if childState == nil {
			return effect.None[PA]()
		}
		return effect.Map(child.Reduce(childState, childAction), embed)
	})
}

// ForEach applies child to the element of a keyed collection addressed by an
// (id, action) pair. Unknown ids are ignored. The child must not remove its own
// element from the collection.
func ForEach[PS, PA any, K comparable, CS, CA any](
	child Reducer[CS, CA],
	elements func(*PS) *[]CS,
	id func(CS) K,
	extract func(PA) (K, CA, bool),
	embed func(K, CA) PA,
) Reducer[PS, PA] {
	return Func[PS, PA](func(parent *PS, action PA) effect.Effect[PA] {
		key, childAction, ok := extract(action)
		if !ok {
			return effect.None[PA]()
		}
		items := elements(parent)
		for i := range *items {
			if id((*items)[i]) != key {
				continue
			}
			return effect.Map(child.Reduce(&(*items)[i], childAction), func(ca CA) PA {
				return embed(key, ca)
			})
		}
		return effect.None[PA]()
	})
}

// Filter runs r only for actions accepted by predicate.
func Filter[S, A any](r Reducer[S, A], predicate func(A) bool) Reducer[S, A] {
	return Func[S, A](func(state *S, action A) effect.Effect[A] {
		if !predicate(action) {
			return effect.None[A]()
		}
		return r.Reduce(state, action)
	})
}

// When runs r only while predicate holds for the current state and action.
func When[S, A any](r Reducer[S, A], predicate func(S, A) bool) Reducer[S, A] {
	return Func[S, A](func(state *S, action A) effect.Effect[A] {
		if !predicate(*state, action) {
			return effect.None[A]()
		}
		return r.Reduce(state, action)
	})
}
