package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dafibh/loansync/internal/buildinfo"
	"github.com/dafibh/loansync/internal/config"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/service"
)

// cliSessionID keys the signed in user in the token file.
const cliSessionID = "cli"

// OAuthClient runs the authorization-code flow for `loanctl login`.
type OAuthClient interface {
	AuthorizeURL(state, challenge string) string
	Exchange(ctx context.Context, code, verifier string) (domain.Tokens, error)
}

// App holds the dependencies shared by every command.
type App struct {
	Config     *config.Config
	ConfigErr  error // set when the drive settings are incomplete
	Tokens     domain.SessionStore
	OAuth      OAuthClient
	BlobStores service.BlobStoreFactory
	Logger     zerolog.Logger
	Now        func() time.Time
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "loanctl",
		Short:   "Loan repayment calculator backed by your cloud drive",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newScheduleCommand(),
		newLoginCommand(app),
		newLogoutCommand(app),
		newListCommand(app),
		newShowCommand(app),
		newNewCommand(app),
		newPayCommand(app),
		newUndoCommand(app),
		newRenameCommand(app),
	)

	return rootCmd
}

// manager builds a session manager over the token file. Uploads are flushed
// explicitly, so background sync stays off.
func (a *App) manager() (*service.SessionManager, error) {
	if a.ConfigErr != nil {
		return nil, fmt.Errorf("drive is not configured: %w", a.ConfigErr)
	}
	now := a.Now
	if now == nil {
		now = time.Now
	}
	return service.NewSessionManager(a.Tokens, a.BlobStores, a.Logger, service.SessionManagerConfig{
		TTL:        a.Config.SessionTTL,
		FolderName: a.Config.Drive.FolderName,
		PageSize:   a.Config.Drive.PageSize,
		Debounce:   a.Config.Sync.Debounce,
		AutoSync:   false,
		Now:        now,
	}), nil
}

// withSession runs fn with the signed in user's session and flushes every
// open view afterwards.
func (a *App) withSession(ctx context.Context, fn func(s *service.LoginSession) error) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	defer m.Close(ctx)

	s, err := m.Get(ctx, cliSessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return errors.New("not signed in, run `loanctl login` first")
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	err = fn(s)
	if errors.Is(err, domain.ErrUnauthorized) {
		return errors.New("the drive rejected the saved sign in, run `loanctl login` again")
	}
	return err
}
