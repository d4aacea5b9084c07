package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/daemon"
	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/infra/sqlite"
)

// guestMetaKey stores the CLI's guest session ID so a guest keeps the same
// local progress across runs.
const guestMetaKey = "cli_guest_id"

// cliSession is one CLI invocation's daemon and engine.
type cliSession struct {
	d       *daemon.Daemon
	engine  *progression.Engine
	session domain.Session
}

// openSession wires the daemon and starts the configured session. The
// caller must close it so pending saves are flushed.
func openSession(cmd *cobra.Command) (*cliSession, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !verbose {
		cfg.Logging.Level = "warn"
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}

	session, err := resolveSession(cfg.Identity, d.DB)
	if err != nil {
		d.Close()
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return &cliSession{d: d, engine: d.Session(ctx, session), session: session}, nil
}

func (s *cliSession) Close() { s.d.Close() }

// resolveSession returns the configured user, or this machine's guest.
func resolveSession(id daemon.IdentityConfig, db *sqlite.DB) (domain.Session, error) {
	if id.UserID != "" {
		return domain.UserSession(id.UserID), nil
	}
	guest, err := db.GetMeta(guestMetaKey)
	if err != nil {
		return domain.Session{}, fmt.Errorf("read guest id: %w", err)
	}
	if guest == "" {
		guest = uuid.NewString()
		if err := db.SetMeta(guestMetaKey, guest); err != nil {
			return domain.Session{}, fmt.Errorf("store guest id: %w", err)
		}
	}
	return domain.GuestSession(guest), nil
}

// withSession opens the session, runs fn and closes it.
func withSession(cmd *cobra.Command, fn func(s *cliSession) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// mutation runs op and prints what changed followed by the status.
func mutation(cmd *cobra.Command, op func(e *progression.Engine) (domain.State, error)) error {
	return withSession(cmd, func(s *cliSession) error {
		before := s.engine.Snapshot()
		after, err := op(s.engine)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		renderChange(out, s.engine.Catalog(), before, after)
		renderStatus(out, s.session, after)
		return nil
	})
}
