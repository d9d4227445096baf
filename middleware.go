package state

import (
	"errors"
	"fmt"
)

// Compose folds an ordered middleware list into a single transform, applied
// in reverse list order: Compose(m0, m1, m2)(base) == m0(m1(m2(base))). The
// first middleware therefore wraps outermost and sees external writes first.
// A middleware that panics while transforming is skipped; composition
// proceeds with the creator as it stood.
func Compose(middleware ...Middleware) Middleware {
	return composeWith(middleware, noopLogger{}, "")
}

func composeWith(middleware []Middleware, logger Logger, store string) Middleware {
	return func(base Creator) Creator {
		creator := base
		for i := len(middleware) - 1; i >= 0; i-- {
			mw := middleware[i]
			if mw == nil {
				continue
			}
			next, err := applyMiddleware(mw, creator)
			if err != nil {
				logger.Log(LogEvent{
					Op:     "compose",
					Store:  store,
					Detail: fmt.Sprintf("middleware %d skipped", i),
					Err:    err,
				})
				continue
			}
			creator = next
		}
		return creator
	}
}

func applyMiddleware(mw Middleware, next Creator) (creator Creator, err error) {
	defer func() {
		if r := recover(); r != nil {
			creator = nil
			err = fmt.Errorf("state: middleware panic: %v", r)
		}
	}()
	creator = mw(next)
	if creator == nil {
		return nil, errors.New("state: middleware returned nil creator")
	}
	return creator, nil
}
