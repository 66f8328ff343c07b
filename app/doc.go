// Package app wraps the engine's app, user and sync session surface.
//
// Login and upload waits are engine callbacks bridged into blocking calls
// with a context; connection state changes arrive on engine threads and are
// forwarded in order through a channel:
//
//	a, err := app.Get(eng, "tasks")
//	user, err := a.LogIn(ctx, app.EmailPassword("ada@example.com", "secret"))
//	defer user.Close()
package app
