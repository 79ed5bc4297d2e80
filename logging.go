package multipool

import "go.uber.org/zap"

// logUnexpectedCAS reports a resourceKey CAS transition that observed a
// pre-state the caller did not expect — an invariantViolation. It is
// logged at DPanic (panics in development builds, logs in production)
// rather than propagated, since the pool must stay internally infallible
// in steady state no matter what a bug on this path does.
func logUnexpectedCAS(logger *zap.Logger, op string, key any, got status, want string) {
	logger.DPanic("multipool: unexpected resource key state",
		zap.String("op", op),
		zap.Any("key", key),
		zap.String("got", got.String()),
		zap.String("want", want),
	)
}

func logHookFailure(logger *zap.Logger, sink ErrorSink, category any, hook string, recovered any) {
	var err error
	switch v := recovered.(type) {
	case error:
		err = v
	default:
		err = &hookPanicError{hook: hook, value: v}
	}
	logger.Warn("multipool: lifecycle hook failed",
		zap.Any("category", category),
		zap.String("hook", hook),
		zap.Error(err),
	)
	if sink != nil {
		sink(category, hook, err)
	}
}

type hookPanicError struct {
	hook  string
	value any
}

func (e *hookPanicError) Error() string {
	return "panic in " + e.hook + " hook: " + toString(e.value)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "non-string panic value"
}
