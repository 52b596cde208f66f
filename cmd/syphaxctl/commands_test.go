package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/plugins/admin"
	"github.com/syphax/syphax/internal/plugins/auth"
)

type fakeService struct {
	admin.Service // unset methods panic

	createUserFn      func(ctx context.Context, in admin.CreateUserInput) (*auth.User, error)
	listUsersFn       func(ctx context.Context, includeDeleted bool) ([]auth.User, error)
	revokeUserFn      func(ctx context.Context, nameOrEmail string) error
	deleteUserFn      func(ctx context.Context, nameOrEmail string) error
	registerProgramFn func(ctx context.Context, in admin.RegisterProgramInput) (*admin.ProgramCredentials, error)
}

func (f *fakeService) CreateUser(ctx context.Context, in admin.CreateUserInput) (*auth.User, error) {
	return f.createUserFn(ctx, in)
}

func (f *fakeService) ListUsers(ctx context.Context, includeDeleted bool) ([]auth.User, error) {
	return f.listUsersFn(ctx, includeDeleted)
}

func (f *fakeService) RevokeUser(ctx context.Context, nameOrEmail string) error {
	return f.revokeUserFn(ctx, nameOrEmail)
}

func (f *fakeService) DeleteUser(ctx context.Context, nameOrEmail string) error {
	return f.deleteUserFn(ctx, nameOrEmail)
}

func (f *fakeService) RegisterProgram(ctx context.Context, in admin.RegisterProgramInput) (*admin.ProgramCredentials, error) {
	return f.registerProgramFn(ctx, in)
}

func newTestCLI(svc admin.Service) (*cli, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &cli{svc: svc, out: &out, errOut: &errOut}, &out, &errOut
}

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"user"}, {"user", "explode"}, {"user", "revoke"}, {"user", "revoke", "a", "b"}} {
		c, _, errOut := newTestCLI(&fakeService{})
		if err := c.run(context.Background(), args); !errors.Is(err, errUsage) {
			t.Errorf("%v: expected errUsage, got %v", args, err)
		}
		if !strings.Contains(errOut.String(), "usage:") {
			t.Errorf("%v: expected usage text", args)
		}
	}
}

func TestUserCreate_Flags(t *testing.T) {
	var got admin.CreateUserInput
	c, out, _ := newTestCLI(&fakeService{
		createUserFn: func(_ context.Context, in admin.CreateUserInput) (*auth.User, error) {
			got = in
			return &auth.User{ID: "u1", Name: in.Name, Email: in.Email}, nil
		},
	})
	stubPasswords(t) // must not prompt

	err := c.run(context.Background(), []string{"user", "create",
		"-name", "Alice", "-email", "alice@example.com", "-mobile", "0612345678", "-password", "secure-password-123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Alice" || got.Mobile != "0612345678" || got.Password != "secure-password-123" {
		t.Errorf("unexpected input: %+v", got)
	}
	if !strings.Contains(out.String(), "created user Alice <alice@example.com> id=u1") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestUserCreate_PromptsForPassword(t *testing.T) {
	var got string
	c, _, _ := newTestCLI(&fakeService{
		createUserFn: func(_ context.Context, in admin.CreateUserInput) (*auth.User, error) {
			got = in.Password
			return &auth.User{ID: "u1"}, nil
		},
	})
	stubPasswords(t, "typed-password", "typed-password")

	if err := c.run(context.Background(), []string{"user", "create", "-name", "A", "-email", "a@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "typed-password" {
		t.Errorf("password = %q", got)
	}
}

func TestUserCreate_PasswordMismatch(t *testing.T) {
	c, _, _ := newTestCLI(&fakeService{
		createUserFn: func(context.Context, admin.CreateUserInput) (*auth.User, error) {
			t.Fatal("must not create a user")
			return nil, nil
		},
	})
	stubPasswords(t, "one", "two")

	if err := c.run(context.Background(), []string{"user", "create", "-name", "A", "-email", "a@example.com"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestUserList(t *testing.T) {
	mobile := "+33612345678"
	var includeDeleted bool
	c, out, _ := newTestCLI(&fakeService{
		listUsersFn: func(_ context.Context, all bool) ([]auth.User, error) {
			includeDeleted = all
			return []auth.User{
				{ID: "u1", Name: "Alice", Email: "alice@example.com", Mobile: &mobile, IsActive: true},
				{ID: "u2", Name: "Bob", Email: "bob@example.com", IsDeleted: true},
			}, nil
		},
	})

	if err := c.run(context.Background(), []string{"user", "list", "-all"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !includeDeleted {
		t.Error("expected -all to include deleted users")
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", out.String())
	}
	if !strings.Contains(lines[1], "+33612345678") || !strings.Contains(lines[1], "active") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "deleted") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestUserRevoke(t *testing.T) {
	var target string
	c, out, _ := newTestCLI(&fakeService{
		revokeUserFn: func(_ context.Context, nameOrEmail string) error {
			target = nameOrEmail
			return nil
		},
	})

	if err := c.run(context.Background(), []string{"user", "revoke", "alice@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != "alice@example.com" || !strings.Contains(out.String(), "revoked alice@example.com") {
		t.Errorf("target=%q output=%q", target, out.String())
	}
}

func TestUserDelete_PropagatesError(t *testing.T) {
	c, out, _ := newTestCLI(&fakeService{
		deleteUserFn: func(context.Context, string) error {
			return apperror.NewConflict("user must be marked deletable first")
		},
	})

	err := c.run(context.Background(), []string{"user", "delete", "Alice"})
	if apperror.SafeMessage(err) != "user must be marked deletable first" {
		t.Errorf("unexpected error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output on failure, got %q", out.String())
	}
}

func TestProgramRegister(t *testing.T) {
	c, out, errOut := newTestCLI(&fakeService{
		registerProgramFn: func(_ context.Context, in admin.RegisterProgramInput) (*admin.ProgramCredentials, error) {
			if in.OwnerEmail != "alice@example.com" || in.Name != "Sensor bridge" {
				t.Errorf("unexpected input: %+v", in)
			}
			return &admin.ProgramCredentials{
				Program: auth.Program{Name: in.Name},
				Key:     "5f0c1a2b-3d4e-4f60-8a7b-9c0d1e2f3a4b",
				Secret:  "deadbeef",
			}, nil
		},
	})

	err := c.run(context.Background(), []string{"program", "register", "-owner", "alice@example.com", "-name", "Sensor bridge"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "key:    5f0c1a2b-3d4e-4f60-8a7b-9c0d1e2f3a4b") || !strings.Contains(out.String(), "secret: deadbeef") {
		t.Errorf("unexpected output: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "shown only once") {
		t.Error("expected a warning that the secret is shown once")
	}
}

func TestStatus(t *testing.T) {
	cases := []struct {
		active, deleted bool
		want            string
	}{
		{true, false, "active"},
		{false, false, "revoked"},
		{true, true, "deleted"},
		{false, true, "deleted"},
	}
	for _, tc := range cases {
		if got := status(tc.active, tc.deleted); got != tc.want {
			t.Errorf("status(%v, %v) = %q, want %q", tc.active, tc.deleted, got, tc.want)
		}
	}
}
