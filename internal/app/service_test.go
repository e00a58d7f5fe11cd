package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kisscoffee/site/internal/auth"
	"kisscoffee/site/internal/authpw"
	"kisscoffee/site/internal/config"
	"kisscoffee/site/internal/history"
	"kisscoffee/site/internal/search"
	"kisscoffee/site/internal/session"
	"kisscoffee/site/internal/settings"
	"kisscoffee/site/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	testOwnerEmail    = "owner@kisscoffee.example"
	testOwnerPassword = "flatwhite42"
)

// flakyDocuments wraps the memory store and fails saves while failSave is set.
type flakyDocuments struct {
	*store.MemoryStore
	mu       sync.Mutex
	failSave bool
	saves    int
}

func (f *flakyDocuments) Save(ctx context.Context, patch settings.Patch) error {
	f.mu.Lock()
	f.saves++
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return &store.Error{Op: "save", Err: errors.New("connection reset")}
	}
	return f.MemoryStore.Save(ctx, patch)
}

func (f *flakyDocuments) setFailSave(fail bool) {
	f.mu.Lock()
	f.failSave = fail
	f.mu.Unlock()
}

type testEnv struct {
	service   *Service
	documents *flakyDocuments
	users     *store.MemoryStore
	sessions  *session.MemoryStore
	archive   *history.Archive
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		EditorTTL:     time.Hour,
		AdminEmail:    testOwnerEmail,
		AdminPassword: testOwnerPassword,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	env := &testEnv{
		documents: &flakyDocuments{MemoryStore: mem},
		users:     mem,
		sessions:  session.NewMemoryStore(),
		archive:   history.New(t.TempDir()),
	}
	env.service = New(testConfig(), Deps{
		Documents: env.documents,
		Users:     env.users,
		Sessions:  env.sessions,
		Archive:   env.archive,
	})
	if err := env.service.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return env
}

func (e *testEnv) addUser(t *testing.T, email, password, role string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	user, err := e.users.UpsertUser(context.Background(), store.User{
		ID:           "usr_" + role,
		Email:        email,
		DisplayName:  role,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	return user
}

func TestBootstrapCreatesOwnerAndBaseline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner, err := env.users.GetUserByEmail(ctx, testOwnerEmail)
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if owner.Role != authpw.RoleOwner {
		t.Fatalf("owner role = %q", owner.Role)
	}

	revisions, err := env.service.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(revisions) != 1 || revisions[0].Message != "Import settings baseline" {
		t.Fatalf("revisions = %+v", revisions)
	}

	if err := env.service.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
	revisions, _ = env.service.History(10)
	if len(revisions) != 1 {
		t.Fatalf("second bootstrap added a baseline, got %d revisions", len(revisions))
	}
}

func TestSaveSettingsArchivesAndReindexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	menu := settings.Default().Menu.Clone()
	menu[settings.CategoryHotDrinks] = append(menu[settings.CategoryHotDrinks], settings.MenuItem{Name: "Cortado", Price: "£2.90"})
	if err := env.service.SaveSettings(ctx, settings.Patch{Menu: &menu}, "Sam"); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	revisions, err := env.service.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("len(revisions) = %d, want 2", len(revisions))
	}
	if revisions[0].Message != "Update menu" || revisions[0].Author != "Sam" {
		t.Fatalf("latest revision = %+v", revisions[0])
	}

	archived, err := env.service.Revision(revisions[0].Hash)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if got := len(archived.Menu[settings.CategoryHotDrinks]); got != 9 {
		t.Fatalf("archived hot drinks = %d, want 9", got)
	}

	res := env.service.SearchMenu(search.Query{Text: "cortado"})
	if len(res.Results) != 1 || res.Results[0].Name != "Cortado" {
		t.Fatalf("search results = %+v", res.Results)
	}
}

func TestSaveSettingsFailureIsNotArchived(t *testing.T) {
	env := newTestEnv(t)
	env.documents.setFailSave(true)

	message := "Closed for the holidays"
	err := env.service.SaveSettings(context.Background(), settings.Patch{CustomMessage: &message}, "Sam")
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("SaveSettings() error = %v, want *store.Error", err)
	}
	revisions, _ := env.service.History(10)
	if len(revisions) != 1 {
		t.Fatalf("failed save was archived: %+v", revisions)
	}
}

func TestSignInRefreshRotatesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.SignIn(ctx, testOwnerEmail, testOwnerPassword)
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if first.Token == "" || first.RefreshToken == "" || first.UserName != ownerDisplayName {
		t.Fatalf("session = %+v", first)
	}

	second, err := env.service.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.JTI == first.JTI {
		t.Fatalf("refresh did not rotate: %+v", second)
	}
	if _, err := env.service.Refresh(ctx, first.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("reused refresh token error = %v, want ErrInvalidToken", err)
	}
	if _, err := env.service.Refresh(ctx, ""); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("empty refresh token error = %v, want ErrInvalidToken", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.service.SignIn(ctx, testOwnerEmail, testOwnerPassword)
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if _, err := env.service.SessionFromToken(ctx, sess.Token); err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if err := env.service.Logout(ctx, sess); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := env.service.SessionFromToken(ctx, sess.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("revoked token error = %v, want ErrInvalidToken", err)
	}
	if _, err := env.service.Refresh(ctx, sess.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("revoked refresh error = %v, want ErrInvalidToken", err)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.SignIn(context.Background(), testOwnerEmail, "espresso")
	if !errors.Is(err, authpw.ErrInvalidCredentials) {
		t.Fatalf("SignIn() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestHistoryDisabledWithoutArchive(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := New(testConfig(), Deps{Documents: mem, Users: mem, Sessions: session.NewMemoryStore()})
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	_, err := svc.History(5)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "HISTORY_DISABLED" {
		t.Fatalf("History() error = %v, want HISTORY_DISABLED", err)
	}
}

func TestPingReportsBackends(t *testing.T) {
	env := newTestEnv(t)
	checks := env.service.Ping(context.Background())
	for _, name := range []string{"database", "sessions"} {
		err, ok := checks[name]
		if !ok || err != nil {
			t.Fatalf("check %s = %v (present %v)", name, err, ok)
		}
	}
}
