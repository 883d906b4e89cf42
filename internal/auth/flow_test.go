package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"todo-backend/internal/auth/authtest"
	"todo-backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrontendURL = "https://app.example.com"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type flowHarness struct {
	idp      *authtest.Provider
	store    *session.MemoryStore
	sessions *session.Manager
	tokens   *TokenStore
	flow     *Flow
	cookies  []*http.Cookie
}

func newFlowHarness(t *testing.T, claims map[string]any) *flowHarness {
	t.Helper()
	idp := authtest.NewProvider(t, claims)
	store := session.NewMemoryStore()
	sessions := session.NewManager(store, testSecret, session.CookieOptions{
		Name:     "todo.sid",
		Secure:   true,
		HTTPOnly: true,
		SameSite: http.SameSiteNoneMode,
		MaxAge:   time.Hour,
	})
	tokens := NewTokenStore(NewMemoryStateBackend(), discardLogger())
	client := NewOIDCClient(idp.AuthConfig(), testRedirectURL, discardLogger())
	return &flowHarness{
		idp:      idp,
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		flow:     NewFlow(client, tokens, testRedirectURL, testFrontendURL, discardLogger()),
	}
}

// start loads the session the way a handler does, sending the cookies the
// browser holds. The returned recorder collects Set-Cookie headers.
func (h *flowHarness) start(t *testing.T) (*session.Session, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range h.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	sess, err := h.sessions.Start(rec, req)
	require.NoError(t, err)
	return sess, rec
}

// keep stores the cookies set on rec, as a browser would.
func (h *flowHarness) keep(rec *httptest.ResponseRecorder) {
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			h.cookies = nil
			continue
		}
		h.cookies = []*http.Cookie{{Name: c.Name, Value: c.Value}}
	}
}

func (h *flowHarness) login(t *testing.T) (sessionID, state string) {
	t.Helper()
	sess, rec := h.start(t)
	authURL, err := h.flow.Login(context.Background(), sess)
	require.NoError(t, err)
	h.keep(rec)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return sess.ID, u.Query().Get("state")
}

func (h *flowHarness) callback(t *testing.T, query url.Values) (string, *session.Session, error) {
	t.Helper()
	sess, rec := h.start(t)
	target, err := h.flow.Callback(context.Background(), sess, query)
	h.keep(rec)
	return target, sess, err
}

func (h *flowHarness) stored(t *testing.T, id string) *session.Record {
	t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func errorParam(t *testing.T, target string) string {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	return u.Query().Get("error")
}

func TestLoginPersistsPendingAttempt(t *testing.T) {
	h := newFlowHarness(t, nil)

	sess, rec := h.start(t)
	authURL, err := h.flow.Login(context.Background(), sess)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, h.idp.URL()+"/auth", u.Scheme+"://"+u.Host+u.Path)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "todo.sid", cookies[0].Name)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)

	stored := h.stored(t, sess.ID)
	assert.Equal(t, state, stored.PendingState)
	assert.False(t, stored.PendingStateCreatedAt.IsZero())
	assert.False(t, stored.IsAuthenticated)
}

func TestLoginConfigurationError(t *testing.T) {
	h := newFlowHarness(t, nil)
	cfg := h.idp.AuthConfig()
	cfg.ClientSecret = ""
	h.flow = NewFlow(NewOIDCClient(cfg, testRedirectURL, discardLogger()), h.tokens, testRedirectURL, testFrontendURL, discardLogger())

	sess, _ := h.start(t)
	_, err := h.flow.Login(context.Background(), sess)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, sess.HasPendingState())
}

func TestCallbackSuccess(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1", "name": "Ada", "email": "ada@example.com"})
	id, state := h.login(t)
	h.idp.IssueCode("c1")

	target, sess, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	require.NoError(t, err)
	assert.Equal(t, testFrontendURL, target)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, testRedirectURL, h.idp.LastRedirectURI())

	stored := h.stored(t, id)
	assert.True(t, stored.IsAuthenticated)
	require.NotNil(t, stored.User)
	assert.Equal(t, "u-1", stored.User.Sub)
	assert.Equal(t, "Ada", stored.User.Name)
	assert.Equal(t, "at-c1", stored.AccessToken)
	assert.Equal(t, "id-c1", stored.IDToken)
	assert.Equal(t, "rt-c1", stored.RefreshToken)
	assert.False(t, stored.HasPendingState())
	assert.Zero(t, h.tokens.backend.(*MemoryStateBackend).Len())
}

func TestCallbackProviderErrorLeavesSessionUntouched(t *testing.T) {
	h := newFlowHarness(t, nil)
	id, state := h.login(t)
	before := h.stored(t, id)

	target, _, err := h.callback(t, url.Values{"error": {"access_denied"}, "state": {state}})
	require.Error(t, err)
	assert.Equal(t, "access_denied", errorParam(t, target))

	after := h.stored(t, id)
	assert.Equal(t, before, after)

	_, outcome, err := h.tokens.Validate(context.Background(), id, state, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Valid(), "attempt must survive a provider error")
}

func TestCallbackMissingParameters(t *testing.T) {
	tests := []struct {
		name  string
		query func(state string) url.Values
	}{
		{name: "no code", query: func(s string) url.Values { return url.Values{"state": {s}} }},
		{name: "no state", query: func(string) url.Values { return url.Values{"code": {"c1"}} }},
		{name: "empty code", query: func(s string) url.Values { return url.Values{"code": {""}, "state": {s}} }},
		{name: "repeated code", query: func(s string) url.Values { return url.Values{"code": {"c1", "c2"}, "state": {s}} }},
		{name: "repeated state", query: func(s string) url.Values { return url.Values{"code": {"c1"}, "state": {s, s}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFlowHarness(t, nil)
			id, state := h.login(t)
			h.idp.IssueCode("c1")

			target, _, err := h.callback(t, tt.query(state))
			assert.ErrorIs(t, err, ErrMissingParameters)
			assert.Equal(t, "missing_code_or_state", errorParam(t, target))
			assert.Zero(t, h.idp.Exchanges())
			assert.Equal(t, state, h.stored(t, id).PendingState)
		})
	}
}

func TestCallbackInvalidState(t *testing.T) {
	h := newFlowHarness(t, nil)
	id, _ := h.login(t)
	h.idp.IssueCode("c1")

	target, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {"forged"}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "invalid_state", errorParam(t, target))
	assert.Zero(t, h.idp.Exchanges())
	assert.False(t, h.stored(t, id).IsAuthenticated)
}

func TestCallbackWithoutSessionCookie(t *testing.T) {
	h := newFlowHarness(t, nil)
	_, state := h.login(t)
	h.cookies = nil
	h.idp.IssueCode("c1")

	target, sess, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "invalid_state", errorParam(t, target))
	assert.True(t, sess.IsNew())
}

func TestCallbackExpiredState(t *testing.T) {
	h := newFlowHarness(t, nil)
	clock := newFakeClock()
	h.tokens.now = clock.Now
	_, state := h.login(t)
	h.idp.IssueCode("c1")

	clock.Advance(DefaultStateTTL + time.Second)
	target, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "invalid_state", errorParam(t, target))
}

func TestCallbackExchangeFailureConsumesAttempt(t *testing.T) {
	h := newFlowHarness(t, nil)
	id, state := h.login(t)
	h.idp.FailToken(true)

	target, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.ErrorIs(t, err, ErrExchange)
	assert.NotEmpty(t, errorParam(t, target))

	stored := h.stored(t, id)
	assert.False(t, stored.IsAuthenticated)
	assert.Nil(t, stored.User)
	assert.False(t, stored.HasPendingState())

	// The same state cannot be used again even once the provider recovers.
	h.idp.FailToken(false)
	h.idp.IssueCode("c1")
	_, _, err = h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCallbackUserInfoFailure(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	id, state := h.login(t)
	h.idp.IssueCode("c1")
	h.idp.FailUserInfo(true)

	target, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.ErrorIs(t, err, ErrUserInfo)
	assert.NotEmpty(t, errorParam(t, target))
	assert.False(t, h.stored(t, id).IsAuthenticated)
}

func TestCallbackFallsBackToMemory(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"preferred_username": "ada"})
	id, state := h.login(t)
	h.idp.IssueCode("c1")

	// A concurrent request wrote back a copy of the record from before Login.
	stale := h.stored(t, id)
	stale.ClearPending()
	require.NoError(t, h.store.Save(context.Background(), stale))

	target, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	require.NoError(t, err)
	assert.Equal(t, testFrontendURL, target)

	stored := h.stored(t, id)
	assert.True(t, stored.IsAuthenticated)
	assert.Equal(t, "ada", stored.User.Sub)

	// Replaying the callback finds nothing.
	h.idp.IssueCode("c1")
	target, _, err = h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "invalid_state", errorParam(t, target))
	assert.True(t, h.stored(t, id).IsAuthenticated, "a rejected replay before consume leaves the session alone")
}

func TestCallbackReplayRejected(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	_, state := h.login(t)
	h.idp.IssueCode("c1")

	_, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	require.NoError(t, err)

	h.idp.IssueCode("c1")
	target, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "invalid_state", errorParam(t, target))
}

func TestCallbackDoubleSubmitKeepsWinner(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	id, state := h.login(t)
	h.idp.IssueCode("c1")
	query := url.Values{"code": {"c1"}, "state": {state}}

	// Both requests load the session while the attempt is still pending.
	first, _ := h.start(t)
	second, secondRec := h.start(t)
	require.True(t, second.HasPendingState())

	_, err := h.flow.Callback(context.Background(), first, query)
	require.NoError(t, err)

	target, err := h.flow.Callback(context.Background(), second, query)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "invalid_state", errorParam(t, target))
	assert.Empty(t, secondRec.Result().Cookies(), "the rejected callback must not write the session")

	stored := h.stored(t, id)
	assert.True(t, stored.IsAuthenticated)
	assert.Equal(t, "u-1", stored.User.Sub)
	assert.Equal(t, 1, h.idp.Exchanges())
}

func TestCallbackAfterSessionRecordLost(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	id, state := h.login(t)
	h.idp.IssueCode("c1")

	// The store dropped the record but the signed cookie still names it.
	require.NoError(t, h.store.Delete(context.Background(), id))

	target, sess, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	require.NoError(t, err)
	assert.Equal(t, testFrontendURL, target)
	assert.Equal(t, id, sess.ID)

	stored := h.stored(t, id)
	assert.True(t, stored.IsAuthenticated)
	assert.Equal(t, "u-1", stored.User.Sub)
}

func TestCallbackExchangeFailureKeepsEarlierLogin(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	id, state := h.login(t)
	h.idp.IssueCode("c1")
	_, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	require.NoError(t, err)

	_, state = h.login(t)
	h.idp.FailToken(true)
	_, _, err = h.callback(t, url.Values{"code": {"c2"}, "state": {state}})
	assert.ErrorIs(t, err, ErrExchange)

	stored := h.stored(t, id)
	assert.True(t, stored.IsAuthenticated)
	assert.Equal(t, "at-c1", stored.AccessToken)
	assert.False(t, stored.HasPendingState())
}

func TestNewLoginSupersedesPendingAttempt(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	_, first := h.login(t)
	_, second := h.login(t)
	require.NotEqual(t, first, second)
	h.idp.IssueCode("c1")

	_, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {first}})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, _, err = h.callback(t, url.Values{"code": {"c1"}, "state": {second}})
	assert.NoError(t, err)
}

type failingStore struct {
	session.Store
	failGet    bool
	failSave   bool
	failDelete bool
}

func (s *failingStore) Get(ctx context.Context, id string) (*session.Record, error) {
	if s.failGet {
		return nil, errors.New("connection refused")
	}
	return s.Store.Get(ctx, id)
}

func (s *failingStore) Save(ctx context.Context, rec *session.Record) error {
	if s.failSave {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, rec)
}

func (s *failingStore) Delete(ctx context.Context, id string) error {
	if s.failDelete {
		return errors.New("connection reset")
	}
	return s.Store.Delete(ctx, id)
}

func TestCallbackPersistenceFailure(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	fs := &failingStore{Store: h.store}
	h.sessions = session.NewManager(fs, testSecret, session.CookieOptions{Name: "todo.sid", MaxAge: time.Hour})
	_, state := h.login(t)
	h.idp.IssueCode("c1")

	fs.failSave = true
	target, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	assert.True(t, IsPersistenceError(err))
	assert.Empty(t, target)
	assert.Zero(t, h.idp.Exchanges())
}

func TestLogout(t *testing.T) {
	h := newFlowHarness(t, map[string]any{"sub": "u-1"})
	id, state := h.login(t)
	h.idp.IssueCode("c1")
	_, _, err := h.callback(t, url.Values{"code": {"c1"}, "state": {state}})
	require.NoError(t, err)

	sess, rec := h.start(t)
	require.NoError(t, h.flow.Logout(context.Background(), sess))
	assert.False(t, sess.IsAuthenticated)

	_, err = h.store.Get(context.Background(), id)
	assert.ErrorIs(t, err, session.ErrNotFound)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestLogoutWithoutSession(t *testing.T) {
	h := newFlowHarness(t, nil)
	sess, _ := h.start(t)
	assert.NoError(t, h.flow.Logout(context.Background(), sess))
}

func TestLogoutStoreFailure(t *testing.T) {
	h := newFlowHarness(t, nil)
	h.sessions = session.NewManager(&failingStore{Store: h.store, failDelete: true}, testSecret, session.CookieOptions{Name: "todo.sid"})
	sess, _ := h.start(t)
	assert.Error(t, h.flow.Logout(context.Background(), sess))
}
