package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/syphax/syphax/internal/plugins/admin"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// errUsage is returned after usage text has been printed.
var errUsage = errors.New("usage")

type cli struct {
	svc    admin.Service
	out    io.Writer
	errOut io.Writer
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage:
  syphaxctl user create -name NAME -email EMAIL [-mobile N] [-image URL] [-password P]
  syphaxctl user list [-all]
  syphaxctl user revoke|restore|mark-deletable|delete NAME_OR_EMAIL
  syphaxctl program register -owner EMAIL -name NAME
  syphaxctl program list OWNER_NAME_OR_EMAIL
  syphaxctl program revoke KEY
`)
}

// run dispatches args (without the program name) to a subcommand.
func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		usage(c.errOut)
		return errUsage
	}

	switch args[0] + " " + args[1] {
	case "user create":
		return c.userCreate(ctx, args[2:])
	case "user list":
		return c.userList(ctx, args[2:])
	case "user revoke":
		return c.withTarget(args[2:], func(t string) error { return c.done(c.svc.RevokeUser(ctx, t), "revoked", t) })
	case "user restore":
		return c.withTarget(args[2:], func(t string) error { return c.done(c.svc.RestoreUser(ctx, t), "restored", t) })
	case "user mark-deletable":
		return c.withTarget(args[2:], func(t string) error { return c.done(c.svc.MarkUserDeletable(ctx, t), "marked deletable", t) })
	case "user delete":
		return c.withTarget(args[2:], func(t string) error { return c.done(c.svc.DeleteUser(ctx, t), "deleted", t) })
	case "program register":
		return c.programRegister(ctx, args[2:])
	case "program list":
		return c.withTarget(args[2:], func(t string) error { return c.programList(ctx, t) })
	case "program revoke":
		return c.withTarget(args[2:], func(t string) error { return c.done(c.svc.RevokeProgram(ctx, t), "revoked program", t) })
	default:
		usage(c.errOut)
		return errUsage
	}
}

// withTarget requires exactly one positional argument.
func (c *cli) withTarget(args []string, fn func(target string) error) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		usage(c.errOut)
		return errUsage
	}
	return fn(args[0])
}

func (c *cli) done(err error, verb, target string) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s\n", verb, target)
	return nil
}

func (c *cli) userCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("user create", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	var in admin.CreateUserInput
	fs.StringVar(&in.Name, "name", "", "display name")
	fs.StringVar(&in.Email, "email", "", "login email")
	fs.StringVar(&in.Mobile, "mobile", "", "mobile number, national or +international")
	fs.StringVar(&in.Image, "image", "", "avatar URL")
	fs.StringVar(&in.Password, "password", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if in.Password == "" {
		pw, err := promptPassword(c.errOut)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		in.Password = pw
	}

	user, err := c.svc.CreateUser(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created user %s <%s> id=%s\n", user.Name, user.Email, user.ID)
	return nil
}

// promptPassword reads a password twice without echo.
func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(w, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func (c *cli) userList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("user list", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	all := fs.Bool("all", false, "include users marked deleted")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	users, err := c.svc.ListUsers(ctx, *all)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tMOBILE\tSTATUS")
	for _, u := range users {
		mobile := "-"
		if u.Mobile != nil {
			mobile = *u.Mobile
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, mobile, status(u.IsActive, u.IsDeleted))
	}
	return tw.Flush()
}

func (c *cli) programRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("program register", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	var in admin.RegisterProgramInput
	fs.StringVar(&in.OwnerEmail, "owner", "", "email of the owning user")
	fs.StringVar(&in.Name, "name", "", "program name")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	creds, err := c.svc.RegisterProgram(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered program %q\nkey:    %s\nsecret: %s\n", creds.Program.Name, creds.Key, creds.Secret)
	fmt.Fprintln(c.errOut, "The secret is shown only once. Store it now.")
	return nil
}

func (c *cli) programList(ctx context.Context, owner string) error {
	programs, err := c.svc.ListPrograms(ctx, owner)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tSTATUS\tCREATED")
	for _, p := range programs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Key, p.Name, status(p.IsActive, p.IsDeleted), p.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func status(active, deleted bool) string {
	switch {
	case deleted:
		return "deleted"
	case active:
		return "active"
	default:
		return "revoked"
	}
}
