package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/roach88/linkctl/internal/api"
	"github.com/roach88/linkctl/internal/apperr"
	"github.com/roach88/linkctl/internal/validate"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Email    string
	Password string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Long: `Log in with email and password. The session is saved locally and
reused by later commands until you log out.

If --password is omitted it is read from standard input.

Example:
  linkctl login --email ada@example.com
  echo "$PASSWORD" | linkctl login --email ada@example.com`,
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				return runLogin(ctx, a, opts, cmd)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (read from stdin if omitted)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runLogin(ctx context.Context, a *app, opts *LoginOptions, cmd *cobra.Command) error {
	in := bufio.NewReader(opts.input(cmd))
	password, err := secret(in, a.out, "Password", opts.Password)
	if err != nil {
		return a.fail(apperr.OpLogin, err)
	}

	input := validate.Login{Email: strings.TrimSpace(opts.Email), Password: password}
	if err := validate.Check(&input); err != nil {
		return a.fail(apperr.OpLogin, err)
	}

	if err := a.session.Login(ctx, input.Email, input.Password); err != nil {
		return a.fail(apperr.OpLogin, err)
	}

	user := a.session.Snapshot().User
	return a.out.Render(user, func(w io.Writer, p *message.Printer) {
		p.Fprintf(w, "Logged in as %s\n", describeUser(user))
	})
}

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Email           string
	Username        string
	FullName        string
	Password        string
	ConfirmPassword string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Long: `Create an account and log in to it.

Passwords omitted from the flags are read from standard input, one per line:
first the password, then its confirmation.

Example:
  linkctl register --email ada@example.com --username ada --full-name "Ada Lovelace"`,
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				return runRegister(ctx, a, opts, cmd)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username, 3 to 20 characters (required)")
	cmd.Flags().StringVar(&opts.FullName, "full-name", "", "your full name (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password, at least 6 characters")
	cmd.Flags().StringVar(&opts.ConfirmPassword, "confirm-password", "", "password again")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("full-name")

	return cmd
}

func runRegister(ctx context.Context, a *app, opts *RegisterOptions, cmd *cobra.Command) error {
	in := bufio.NewReader(opts.input(cmd))
	password, err := secret(in, a.out, "Password", opts.Password)
	if err != nil {
		return a.fail(apperr.OpRegister, err)
	}
	confirm, err := secret(in, a.out, "Confirm password", opts.ConfirmPassword)
	if err != nil {
		return a.fail(apperr.OpRegister, err)
	}

	input := validate.Register{
		Password:        password,
		ConfirmPassword: confirm,
		Username:        strings.TrimSpace(opts.Username),
		Email:           strings.TrimSpace(opts.Email),
		FullName:        strings.TrimSpace(opts.FullName),
	}
	if err := validate.Check(&input); err != nil {
		return a.fail(apperr.OpRegister, err)
	}

	err = a.session.Register(ctx, api.RegisterRequest{
		Email:    input.Email,
		Username: input.Username,
		Password: input.Password,
		FullName: input.FullName,
	})
	if err != nil {
		return a.fail(apperr.OpRegister, err)
	}

	user := a.session.Snapshot().User
	return a.out.Render(user, func(w io.Writer, p *message.Printer) {
		p.Fprintf(w, "Registered and logged in as %s\n", describeUser(user))
	})
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Long: `Clear the saved session. No request is sent to the server.

Example:
  linkctl logout`,
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				if err := a.session.Logout(ctx); err != nil {
					return a.fail(apperr.OpOther, err)
				}
				return a.out.Render(map[string]bool{"logged_out": true}, func(w io.Writer, p *message.Printer) {
					p.Fprintln(w, "Logged out")
				})
			})
		},
	}
}

// WhoamiResult is the JSON output of whoami.
type WhoamiResult struct {
	User      *api.User  `json:"user"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Long: `Show the user of the saved session and when its access token expires.
An expired token is renewed automatically by the next request.

Example:
  linkctl whoami`,
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				return runWhoami(a)
			})
		},
	}
}

func runWhoami(a *app) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	s := a.session.Snapshot()
	res := WhoamiResult{User: s.User, Expired: s.Expired(a.session.Now())}
	if !s.ExpiresAt.IsZero() {
		res.ExpiresAt = &s.ExpiresAt
	}

	return a.out.Render(res, func(w io.Writer, p *message.Printer) {
		p.Fprintf(w, "User:    %s\n", describeUser(s.User))
		switch {
		case res.ExpiresAt == nil:
			p.Fprintln(w, "Session: no expiry")
		case res.Expired:
			p.Fprintf(w, "Session: expired %s (renewed on next request)\n", formatTime(s.ExpiresAt))
		default:
			p.Fprintf(w, "Session: valid until %s\n", formatTime(s.ExpiresAt))
		}
	})
}

// input returns where secrets are read from.
func (o *RootOptions) input(cmd *cobra.Command) io.Reader {
	if o.stdin != nil {
		return o.stdin
	}
	return cmd.InOrStdin()
}

// secret returns flagValue, or reads one line from in after prompting.
func secret(in *bufio.Reader, out *OutputFormatter, prompt, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprintf(out.GetErrWriter(), "%s: ", prompt)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", errorf("%s: no input", strings.ToLower(prompt))
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func describeUser(u *api.User) string {
	if u == nil {
		return "(unknown user)"
	}
	return fmt.Sprintf("%s (%s)", u.Username, u.Email)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}
