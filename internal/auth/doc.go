// Package auth implements the gateway's session and authentication engine.
//
// The Engine owns an in-process user table and answers the questions the
// request pipeline asks: who does this bearer token belong to, and may that
// user call this endpoint. Passwords are hashed with argon2id (see the
// password subpackage) and tokens are HS256 JWTs carrying a permission
// snapshot (see the token subpackage).
//
// Session bindings live only in the durable key-value store. A
// SessionStore maps a session id to a user id with a fixed lifetime and
// reports a store outage separately from an unknown session.
//
// # Usage
//
//	hasher, _ := password.New(password.ConfigFrom(cfg.Auth.Argon2))
//	tokens, _ := token.NewManager(token.Config{Secret: []byte(cfg.Auth.Secret)})
//	engine := auth.NewEngine(hasher, tokens,
//	    auth.WithSessions(auth.NewSessionStore(store, time.Hour)),
//	)
//
//	user, err := engine.CreateUser("alice", "alice@example.com", "s3cret-pass")
//	result, err := engine.Login(ctx, "alice", "s3cret-pass")
package auth
