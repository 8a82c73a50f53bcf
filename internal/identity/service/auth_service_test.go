package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"golang.org/x/crypto/bcrypt"

	"github.com/swpuclaylee/APIFlask/internal/audit"
	auditdomain "github.com/swpuclaylee/APIFlask/internal/audit/domain"
	auditrepo "github.com/swpuclaylee/APIFlask/internal/audit/repository"
	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/denylist"
	rbacdomain "github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	rbacrepo "github.com/swpuclaylee/APIFlask/internal/rbac/repository"
	"github.com/swpuclaylee/APIFlask/internal/rbac/resolver"
	rbacsvc "github.com/swpuclaylee/APIFlask/internal/rbac/service"
	"github.com/swpuclaylee/APIFlask/internal/security"
	"github.com/swpuclaylee/APIFlask/internal/token"
	userrepo "github.com/swpuclaylee/APIFlask/internal/user/repository"
	usersvc "github.com/swpuclaylee/APIFlask/internal/user/service"
)

type harness struct {
	svc    *AuthService
	clock  *testclock.Clock
	users  *userrepo.MemoryRepository
	roles  *rbacsvc.RoleService
	perms  *rbacsvc.PermissionService
	tokens *token.Service
	audits *auditrepo.MemoryRepository
}

func newHarness(t *testing.T, revokeOnChange bool) *harness {
	t.Helper()
	clk := testclock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	users := userrepo.NewMemoryRepository()
	graph := rbacrepo.NewMemoryRepository(users)
	hasher := security.NewHasher(bcrypt.MinCost)
	tokens := token.NewService(token.Config{
		Provider:               security.NewTestTokenProvider(clk),
		Users:                  users,
		Revocations:            denylist.NewChecker(denylist.NewMemoryStore(clk), denylist.CheckerConfig{}),
		RevokeOnPasswordChange: revokeOnChange,
	})
	roles := rbacsvc.NewRoleService(graph, users, clk, 0)
	audits := auditrepo.NewMemoryRepository()
	svc := NewAuthService(Config{
		Users:                  users,
		Creator:                usersvc.NewUserService(users, hasher, clk, 0),
		Roles:                  roles,
		Permissions:            resolver.NewResolver(graph, 0),
		Hasher:                 hasher,
		Tokens:                 tokens,
		Audit:                  audit.NewLogger(audits, func(context.Context) string { return "203.0.113.7" }, clk, nil),
		Clock:                  clk,
		RevokeOnPasswordChange: revokeOnChange,
	})
	return &harness{
		svc:    svc,
		clock:  clk,
		users:  users,
		roles:  roles,
		perms:  rbacsvc.NewPermissionService(graph, clk, 0),
		tokens: tokens,
		audits: audits,
	}
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.perms.EnsureCatalog(ctx); err != nil {
		t.Fatalf("EnsureCatalog: %v", err)
	}
	if _, err := h.roles.EnsureSeedRoles(ctx); err != nil {
		t.Fatalf("EnsureSeedRoles: %v", err)
	}
}

func (h *harness) actions(t *testing.T) []string {
	t.Helper()
	page, err := h.audits.List(context.Background(), auditdomain.ListFilter{PerPage: 100})
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	out := make([]string, 0, len(page.Logs))
	for i := len(page.Logs) - 1; i >= 0; i-- {
		out = append(out, page.Logs[i].Action)
	}
	return out
}

func TestAuthService_RegisterGrantsDefaultRole(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t)
	ctx := context.Background()

	res, err := h.svc.Register(ctx, "alice", "Alice@Example.com", "secret123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Email != "alice@example.com" || !res.User.IsActive {
		t.Errorf("registered user = %+v", res.User)
	}
	if res.Tokens.Access == nil || res.Tokens.Refresh == nil {
		t.Fatal("Register did not issue a token pair")
	}
	if _, err := h.tokens.Verify(ctx, res.Tokens.Access.Token, security.KindAccess); err != nil {
		t.Errorf("issued access token does not verify: %v", err)
	}
	names, _ := h.roles.UserRoleNames(ctx, res.User.ID)
	if !reflect.DeepEqual(names, []string{rbacdomain.DefaultRole}) {
		t.Errorf("roles = %v, want [%s]", names, rbacdomain.DefaultRole)
	}
}

func TestAuthService_RegisterWithoutDefaultRole(t *testing.T) {
	h := newHarness(t, true)
	res, err := h.svc.Register(context.Background(), "alice", "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	names, _ := h.roles.UserRoleNames(context.Background(), res.User.ID)
	if len(names) != 0 {
		t.Errorf("roles = %v, want none", names)
	}
}

func TestAuthService_RegisterValidation(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	tests := []struct {
		name, username, email, password, field string
	}{
		{"short username", "al", "al@example.com", "secret123", "username"},
		{"bad email", "alice", "not-an-email", "secret123", "email"},
		{"weak password", "alice", "alice@example.com", "secret", "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Register(ctx, tc.username, tc.email, tc.password)
			var ve *autherr.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Errorf("Register err = %v, want validation error on %s", err, tc.field)
			}
		})
	}
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, "alice", "alice@example.com", "secret123"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := h.svc.Register(ctx, "alice", "other@example.com", "secret123")
	var dup *autherr.DuplicateError
	if !errors.As(err, &dup) || dup.Field != "username" {
		t.Errorf("duplicate username err = %v", err)
	}
	_, err = h.svc.Register(ctx, "alice2", "alice@example.com", "secret123")
	if !errors.As(err, &dup) || dup.Field != "email" {
		t.Errorf("duplicate email err = %v", err)
	}
}

func TestAuthService_ConcurrentRegisterExactlyOneWins(t *testing.T) {
	h := newHarness(t, true)
	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dups      int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Register(context.Background(), "racer", "racer@example.com", "secret123")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, autherr.ErrDuplicateIdentity):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || dups != n-1 {
		t.Errorf("successes = %d, duplicates = %d; want 1 and %d", successes, dups, n-1)
	}
}

func TestAuthService_LoginRoundTrip(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	reg, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")

	res, err := h.svc.Login(ctx, " alice ", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := h.tokens.Verify(ctx, res.Tokens.Access.Token, security.KindAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID() != reg.User.ID || claims.Username != "alice" {
		t.Errorf("claims = %+v", claims)
	}
	stored, _ := h.users.GetByID(ctx, reg.User.ID)
	if stored.LastLoginAt == nil || !stored.LastLoginAt.Equal(h.clock.Now()) {
		t.Errorf("last_login_at = %v", stored.LastLoginAt)
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	reg, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")

	if _, err := h.svc.Login(ctx, "alice", "wrong123"); !errors.Is(err, autherr.ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := h.svc.Login(ctx, "nobody", "secret123"); !errors.Is(err, autherr.ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}
	if _, err := h.svc.Login(ctx, "", "secret123"); !autherr.IsValidation(err) {
		t.Errorf("empty username err = %v", err)
	}

	u, _ := h.users.GetByID(ctx, reg.User.ID)
	u.IsActive = false
	_ = h.users.Update(ctx, u)
	if _, err := h.svc.Login(ctx, "alice", "secret123"); !errors.Is(err, autherr.ErrAccountDisabled) {
		t.Errorf("disabled account err = %v", err)
	}
	// A disabled account with a wrong password still looks like bad credentials.
	if _, err := h.svc.Login(ctx, "alice", "wrong123"); !errors.Is(err, autherr.ErrInvalidCredentials) {
		t.Errorf("disabled account wrong password err = %v", err)
	}

	want := []string{"register", "login_failure", "login_failure", "login_failure", "login_failure"}
	if got := h.actions(t); !reflect.DeepEqual(got, want) {
		t.Errorf("audit actions = %v, want %v", got, want)
	}
}

func TestAuthService_LogoutRevokesAccessOnly(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	reg, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")
	access, _ := h.tokens.Verify(ctx, reg.Tokens.Access.Token, security.KindAccess)

	if err := h.svc.Logout(ctx, access, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.tokens.Verify(ctx, reg.Tokens.Access.Token, security.KindAccess); !errors.Is(err, autherr.ErrTokenRevoked) {
		t.Errorf("access after logout err = %v, want ErrTokenRevoked", err)
	}
	if _, _, err := h.svc.Refresh(ctx, reg.Tokens.Refresh.Token); err != nil {
		t.Errorf("refresh without explicit revocation should still work: %v", err)
	}
}

func TestAuthService_LogoutWithRefreshToken(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	reg, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")
	access, _ := h.tokens.Verify(ctx, reg.Tokens.Access.Token, security.KindAccess)

	if err := h.svc.Logout(ctx, access, reg.Tokens.Refresh.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := h.svc.Refresh(ctx, reg.Tokens.Refresh.Token); !errors.Is(err, autherr.ErrTokenRevoked) {
		t.Errorf("refresh after logout err = %v, want ErrTokenRevoked", err)
	}
	// Repeating the logout is harmless.
	if err := h.svc.Logout(ctx, access, reg.Tokens.Refresh.Token); err != nil {
		t.Errorf("second Logout: %v", err)
	}
}

func TestAuthService_LogoutRejectsForeignRefreshToken(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	alice, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")
	bob, _ := h.svc.Register(ctx, "bobby", "bob@example.com", "secret123")
	access, _ := h.tokens.Verify(ctx, alice.Tokens.Access.Token, security.KindAccess)

	if err := h.svc.Logout(ctx, access, bob.Tokens.Refresh.Token); !autherr.IsValidation(err) {
		t.Fatalf("Logout err = %v, want validation error", err)
	}
	if _, _, err := h.svc.Refresh(ctx, bob.Tokens.Refresh.Token); err != nil {
		t.Errorf("bob's refresh token was revoked: %v", err)
	}
	if _, err := h.tokens.Verify(ctx, alice.Tokens.Access.Token, security.KindAccess); err != nil {
		t.Errorf("rejected logout still revoked the access token: %v", err)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	reg, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")
	access, _ := h.tokens.Verify(ctx, reg.Tokens.Access.Token, security.KindAccess)
	h.clock.Advance(2 * time.Second)

	if _, err := h.svc.ChangePassword(ctx, access, "wrong123", "newpass456"); !errors.Is(err, autherr.ErrInvalidCredentials) {
		t.Errorf("wrong current password err = %v", err)
	}
	if _, err := h.svc.ChangePassword(ctx, access, "secret123", "short"); !autherr.IsValidation(err) {
		t.Errorf("weak new password err = %v", err)
	}

	pair, err := h.svc.ChangePassword(ctx, access, "secret123", "newpass456")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := h.tokens.Verify(ctx, reg.Tokens.Access.Token, security.KindAccess); !errors.Is(err, autherr.ErrTokenRevoked) {
		t.Errorf("old access token err = %v, want ErrTokenRevoked", err)
	}
	if _, _, err := h.svc.Refresh(ctx, reg.Tokens.Refresh.Token); !errors.Is(err, autherr.ErrTokenRevoked) {
		t.Errorf("old refresh token err = %v, want ErrTokenRevoked", err)
	}
	if _, _, err := h.svc.Refresh(ctx, pair.Refresh.Token); err != nil {
		t.Errorf("new refresh token: %v", err)
	}
	if _, err := h.svc.Login(ctx, "alice", "secret123"); !errors.Is(err, autherr.ErrInvalidCredentials) {
		t.Errorf("login with old password err = %v", err)
	}
	if _, err := h.svc.Login(ctx, "alice", "newpass456"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestAuthService_ChangePasswordWithoutRevoke(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	reg, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")
	access, _ := h.tokens.Verify(ctx, reg.Tokens.Access.Token, security.KindAccess)
	h.clock.Advance(2 * time.Second)

	if _, err := h.svc.ChangePassword(ctx, access, "secret123", "newpass456"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := h.tokens.Verify(ctx, reg.Tokens.Access.Token, security.KindAccess); err != nil {
		t.Errorf("access token revoked with revoke-on-change off: %v", err)
	}
	if _, _, err := h.svc.Refresh(ctx, reg.Tokens.Refresh.Token); err != nil {
		t.Errorf("old refresh token rejected with revoke-on-change off: %v", err)
	}
}

func TestAuthService_Me(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t)
	ctx := context.Background()
	reg, _ := h.svc.Register(ctx, "alice", "alice@example.com", "secret123")

	p, err := h.svc.Me(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if !reflect.DeepEqual(p.Roles, []string{"user"}) {
		t.Errorf("roles = %v", p.Roles)
	}
	want := []string{rbacdomain.PermOrderRead, rbacdomain.PermProductRead, rbacdomain.PermUserRead}
	if !reflect.DeepEqual(p.Permissions, want) {
		t.Errorf("permissions = %v, want %v", p.Permissions, want)
	}
	if _, err := h.svc.Me(ctx, "ghost"); !errors.Is(err, autherr.ErrIdentityInvalid) {
		t.Errorf("Me(ghost) err = %v", err)
	}
}
