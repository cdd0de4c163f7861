package store

// View is the read/dispatch surface shared by stores and scoped stores, which
// is all a presentation layer needs to bind to.
type View[S, A any] interface {
	State() S
	Send(action A)
	Subscribe(buffer int) (*Subscription[S], error)
}

var (
	_ View[int, int] = (*Store[int, int])(nil)
	_ View[int, int] = (*ScopedStore[int, int, int, int])(nil)
)

// ScopedStore is a child view over part of a parent's state and action space.
// It owns no state: reads project the parent's state, sends are embedded and
// forwarded to the parent.
type ScopedStore[PS, PA, CS, CA any] struct {
	parent    View[PS, PA]
	toChild   func(PS) CS
	fromChild func(CA) PA
}

// Scope derives a child view from parent.
func Scope[PS, PA, CS, CA any](parent View[PS, PA], toChild func(PS) CS, fromChild func(CA) PA) *ScopedStore[PS, PA, CS, CA] {
	return &ScopedStore[PS, PA, CS, CA]{
		parent:    parent,
		toChild:   toChild,
		fromChild: fromChild,
	}
}

func (s *ScopedStore[PS, PA, CS, CA]) State() CS {
	return s.toChild(s.parent.State())
}

func (s *ScopedStore[PS, PA, CS, CA]) Send(action CA) {
	s.parent.Send(s.fromChild(action))
}

// Subscribe projects every parent snapshot. Cancelling the returned
// subscription cancels the underlying parent subscription.
func (s *ScopedStore[PS, PA, CS, CA]) Subscribe(buffer int) (*Subscription[CS], error) {
	source, err := s.parent.Subscribe(buffer)
	if err != nil {
		return nil, err
	}
	return mapSubscription(source, buffer, s.toChild), nil
}
