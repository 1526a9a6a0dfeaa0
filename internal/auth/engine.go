package auth

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/cases"

	"github.com/vyrodovalexey/omnigw/internal/auth/password"
	"github.com/vyrodovalexey/omnigw/internal/auth/token"
	"github.com/vyrodovalexey/omnigw/internal/cache"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

const tracerName = "github.com/vyrodovalexey/omnigw/internal/auth"

// Well-known permissions.
const (
	PermissionUser  = "user"
	PermissionAdmin = "admin"
)

// User is a registered account. Only Permissions ever changes after
// creation.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) clone() *User {
	c := *u
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

type account struct {
	user *User
	hash string
	// generation is bumped on every permission change.
	generation uint64
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Engine is the user table plus the credential, token and permission
// operations over it. It is safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	byID   map[string]*account
	byName map[string]string

	hasher      *password.Hasher
	tokens      *token.Manager
	sessions    *SessionStore
	permissions *cache.Tiered
	logger      observability.Logger
	now         func() time.Time
	newID       func() string

	dummyHash func() (string, error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSessions enables session bindings on Login.
func WithSessions(sessions *SessionStore) EngineOption {
	return func(e *Engine) {
		e.sessions = sessions
	}
}

// WithPermissionCache caches permission sets read by CheckPermission.
func WithPermissionCache(c *cache.Tiered) EngineOption {
	return func(e *Engine) {
		e.permissions = c
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineClock replaces time.Now for creation timestamps.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine returns an Engine with an empty user table.
func NewEngine(hasher *password.Hasher, tokens *token.Manager, opts ...EngineOption) *Engine {
	e := &Engine{
		byID:   make(map[string]*account),
		byName: make(map[string]string),
		hasher: hasher,
		tokens: tokens,
		logger: observability.NopLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	e.dummyHash = sync.OnceValues(func() (string, error) {
		return e.hasher.Hash(uuid.NewString())
	})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// foldUsername maps usernames differing only in case to the same key.
func foldUsername(username string) string {
	return cases.Fold().String(username)
}

// CreateUser registers a user with the default permission set.
func (e *Engine) CreateUser(username, email, plaintext string) (*User, error) {
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHashing, err)
	}

	key := foldUsername(username)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.byName[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateUser, username)
	}

	u := &User{
		ID:          e.newID(),
		Username:    username,
		Email:       email,
		Permissions: []string{PermissionUser},
		CreatedAt:   e.now().UTC(),
	}
	e.byID[u.ID] = &account{user: u, hash: hash}
	e.byName[key] = u.ID

	e.logger.Info("user created",
		observability.String("user_id", u.ID),
		observability.String("username", username),
	)
	return u.clone(), nil
}

// User returns a copy of the user with id.
func (e *Engine) User(id string) (*User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	acc, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	return acc.user.clone(), true
}

// UserByName returns a copy of the user registered as username.
func (e *Engine) UserByName(username string) (*User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.byName[foldUsername(username)]
	if !ok {
		return nil, false
	}
	return e.byID[id].user.clone(), true
}

// Users returns the number of registered users.
func (e *Engine) Users() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byID)
}

// Authenticate verifies the password of username and returns a signed
// token carrying the user's current permissions.
func (e *Engine) Authenticate(ctx context.Context, username, plaintext string) (string, error) {
	u, err := e.verifyCredentials(ctx, username, plaintext)
	if err != nil {
		return "", err
	}
	return e.IssueToken(u.ID, u.Permissions)
}

func (e *Engine) verifyCredentials(ctx context.Context, username, plaintext string) (*User, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "auth.verify_credentials")
	defer span.End()

	e.mu.RLock()
	var acc *account
	if id, ok := e.byName[foldUsername(username)]; ok {
		acc = e.byID[id]
	}
	var u *User
	var hash string
	if acc != nil {
		u, hash = acc.user.clone(), acc.hash
	}
	e.mu.RUnlock()

	if u == nil {
		// Burn the same argon2 cost as a real check.
		if dummy, err := e.dummyHash(); err == nil {
			_, _ = e.hasher.Verify(plaintext, dummy)
		}
		span.SetStatus(codes.Error, "unknown user")
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(plaintext, hash)
	if err != nil {
		e.logger.Error("stored password hash is unreadable",
			observability.String("user_id", u.ID),
			observability.Error(err),
		)
		span.SetStatus(codes.Error, "unreadable hash")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		span.SetStatus(codes.Error, "wrong password")
		return nil, ErrInvalidCredentials
	}

	e.upgradeHash(u.ID, plaintext, hash)

	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// upgradeHash rehashes a verified password stored with weaker parameters
// than the current hasher's.
func (e *Engine) upgradeHash(userID, plaintext, old string) {
	stale, err := e.hasher.NeedsRehash(old)
	if err != nil || !stale {
		return
	}
	fresh, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.Warn("password rehash failed",
			observability.String("user_id", userID),
			observability.Error(err),
		)
		return
	}

	e.mu.Lock()
	if acc, ok := e.byID[userID]; ok && acc.hash == old {
		acc.hash = fresh
	}
	e.mu.Unlock()

	e.logger.Info("password hash upgraded", observability.String("user_id", userID))
}

// IssueToken signs a token for userID embedding permissions.
func (e *Engine) IssueToken(userID string, permissions []string) (string, error) {
	return e.tokens.Issue(userID, permissions)
}

// VerifyToken returns the claims of a valid token. It fails with
// ErrTokenExpired or ErrTokenInvalid.
func (e *Engine) VerifyToken(raw string) (*token.Claims, error) {
	return e.tokens.Verify(raw)
}

// CheckPermission reports whether the user holds required or admin.
func (e *Engine) CheckPermission(ctx context.Context, userID, required string) (bool, error) {
	perms, err := e.permissionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(perms, required) || slices.Contains(perms, PermissionAdmin), nil
}

func (e *Engine) permissionsOf(ctx context.Context, userID string) ([]string, error) {
	if e.permissions != nil {
		if perms, ok := e.permissions.GetPermissions(ctx, userID); ok {
			return perms, nil
		}
	}

	e.mu.RLock()
	acc, ok := e.byID[userID]
	var perms []string
	var generation uint64
	if ok {
		perms = slices.Clone(acc.user.Permissions)
		generation = acc.generation
	}
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	if e.permissions != nil && e.generation(userID) == generation {
		if err := e.permissions.SetPermissions(ctx, userID, perms); err != nil {
			e.logger.Debug("failed to cache permissions",
				observability.String("user_id", userID),
				observability.Error(err),
			)
		}
		// A grant that landed during the write already invalidated; drop
		// what was written after it.
		if e.generation(userID) != generation {
			e.permissions.InvalidatePermissions(ctx, userID)
		}
	}
	return perms, nil
}

func (e *Engine) generation(userID string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if acc, ok := e.byID[userID]; ok {
		return acc.generation
	}
	return 0
}

// GrantPermission adds permission to the user. Granting a held permission
// is a no-op.
func (e *Engine) GrantPermission(ctx context.Context, userID, permission string) error {
	e.mu.Lock()
	acc, ok := e.byID[userID]
	if ok && !slices.Contains(acc.user.Permissions, permission) {
		acc.user.Permissions = append(acc.user.Permissions, permission)
		acc.generation++
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if e.permissions != nil {
		e.permissions.InvalidatePermissions(ctx, userID)
	}

	e.logger.Info("permission granted",
		observability.String("user_id", userID),
		observability.String("permission", permission),
	)
	return nil
}

// Login authenticates username and, when sessions are enabled, stores a
// new session bound to the user.
func (e *Engine) Login(ctx context.Context, username, plaintext string) (*LoginResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "auth.login")
	defer span.End()

	u, err := e.verifyCredentials(ctx, username, plaintext)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	raw, err := e.IssueToken(u.ID, u.Permissions)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &LoginResult{
		Token:     raw,
		UserID:    u.ID,
		ExpiresAt: e.now().Add(e.tokens.TTL()).UTC(),
	}

	if e.sessions != nil {
		sessionID := uuid.NewString()
		if err := e.sessions.Store(ctx, sessionID, u.ID); err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.SessionID = sessionID
	}

	e.logger.Info("user logged in", observability.String("user_id", u.ID))
	return result, nil
}

// Logout deletes a session created by Login.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e.sessions == nil {
		return nil
	}
	return e.sessions.Delete(ctx, sessionID)
}

// Session returns the user bound to sessionID.
func (e *Engine) Session(ctx context.Context, sessionID string) (*User, error) {
	if e.sessions == nil {
		return nil, ErrSessionNotFound
	}
	userID, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	u, ok := e.User(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return u, nil
}
