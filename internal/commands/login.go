package commands

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dafibh/loansync/internal/auth"
)

func newLoginCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the drive and store the tokens locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.manager()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer m.Close(ctx)

			verifier, err := auth.GenerateCodeVerifier()
			if err != nil {
				return fmt.Errorf("generating PKCE verifier: %w", err)
			}
			state := uuid.NewString()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this URL in a browser and sign in:")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  "+app.OAuth.AuthorizeURL(state, auth.CodeChallenge(verifier)))
			fmt.Fprintln(out)
			fmt.Fprint(out, "Paste the URL you were redirected to: ")

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && strings.TrimSpace(line) == "" {
				return errors.New("no redirect URL given")
			}
			code, err := parseRedirect(strings.TrimSpace(line), state)
			if err != nil {
				return err
			}

			tokens, err := app.OAuth.Exchange(ctx, code, verifier)
			if err != nil {
				return fmt.Errorf("exchanging authorization code: %w", err)
			}

			if _, err := m.Put(ctx, cliSessionID, tokens); err != nil {
				return fmt.Errorf("storing tokens: %w", err)
			}

			fmt.Fprintln(out, "Signed in.")
			return nil
		},
	}

	return cmd
}

// parseRedirect accepts either the full redirect URL or a bare code.
func parseRedirect(input, state string) (string, error) {
	if input == "" {
		return "", errors.New("no redirect URL given")
	}
	if !strings.Contains(input, "?") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("sign in failed: %s %s", e, q.Get("error_description"))
	}
	if got := q.Get("state"); got != "" && got != state {
		return "", errors.New("redirect state does not match, start the login again")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code")
	}
	return code, nil
}

func newLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := app.manager()
			if err != nil {
				return err
			}
			defer m.Close(ctx)

			if err := m.Delete(ctx, cliSessionID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
