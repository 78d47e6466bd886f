package physics

import "context"

type lockKey struct{}

// lockToken identifies one acquisition of the engine lock. It is not
// zero-sized so that every token has a distinct address.
type lockToken struct{ seq uint64 }

// lock acquires the engine lock unless ctx already carries the current
// holder's token. The returned context carries the token; pass it to any
// call that may re-enter the engine.
func (e *Engine) lock(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tok, ok := ctx.Value(lockKey{}).(*lockToken); ok && e.holder.Load() == tok {
		return ctx, func() {}, nil
	}
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, nil, ctx.Err()
	}
	e.seq++
	tok := &lockToken{seq: e.seq}
	e.holder.Store(tok)
	unlock := func() {
		e.holder.Store(nil)
		<-e.sem
	}
	return context.WithValue(ctx, lockKey{}, tok), unlock, nil
}
