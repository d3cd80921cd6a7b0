package authsdk

import "context"

// Navigator moves the execution context to another view. For a browser that
// is a route change; for a CLI it may print a hint or do nothing.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) { f(ctx, path) }

// NopNavigator ignores navigation.
type NopNavigator struct{}

func (NopNavigator) Navigate(context.Context, string) {}
