package auth

import "context"

// State is the mutable request-scoped namespace shared by middleware and
// handlers. It caches the resolved principal so one request never loads a
// user twice.
type State struct {
	User     Principal
	resolved bool
}

// SetUser records user as resolved for the request.
func (s *State) SetUser(user Principal) {
	s.User = user
	s.resolved = true
}

// ClearUser forgets the current user.
func (s *State) ClearUser() {
	s.User = nil
	s.resolved = false
}

// CachedUser returns the cached principal, if one was resolved.
func (s *State) CachedUser() (Principal, bool) {
	if s == nil || !s.resolved || !Present(s.User) {
		return nil, false
	}
	return s.User, true
}

type stateKey struct{}

// ContextWithState attaches st to ctx.
func ContextWithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// StateFromContext returns the request state, if installed.
func StateFromContext(ctx context.Context) (*State, bool) {
	st, ok := ctx.Value(stateKey{}).(*State)
	return st, ok && st != nil
}

// EnsureState returns ctx unchanged when it already carries state, otherwise
// a derived context with fresh state.
func EnsureState(ctx context.Context) (context.Context, *State) {
	if st, ok := StateFromContext(ctx); ok {
		return ctx, st
	}
	st := &State{}
	return ContextWithState(ctx, st), st
}

// UserFromContext returns the principal stored on the request state.
func UserFromContext(ctx context.Context) (Principal, bool) {
	st, ok := StateFromContext(ctx)
	if !ok {
		return nil, false
	}
	return st.CachedUser()
}
