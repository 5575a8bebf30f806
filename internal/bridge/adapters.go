package bridge

import "context"

// Func0 adapts a function taking no arguments.
func Func0[R any](fn func(ctx context.Context) (R, error)) Handler {
	return func(ctx context.Context, _ Args) (any, error) {
		return fn(ctx)
	}
}

// Func1 adapts a function taking one positional argument. A missing argument
// decodes as the zero value of A.
func Func1[A, R any](fn func(ctx context.Context, a A) (R, error)) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		var a A
		if err := args.Decode(0, &a); err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// Func2 adapts a function taking two positional arguments.
func Func2[A, B, R any](fn func(ctx context.Context, a A, b B) (R, error)) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		var a A
		var b B
		if err := args.Decode(0, &a); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &b); err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}
}

// Func3 adapts a function taking three positional arguments.
func Func3[A, B, C, R any](fn func(ctx context.Context, a A, b B, c C) (R, error)) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		var a A
		var b B
		var c C
		if err := args.Decode(0, &a); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &b); err != nil {
			return nil, err
		}
		if err := args.Decode(2, &c); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c)
	}
}
