package cli

import (
	"context"
	"errors"
	"os"

	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/pkg/notifclient"

	"github.com/spf13/viper"
)

type sessionOptions struct {
	push bool
	// anonymous allows a session without a stored token for local-only operations.
	anonymous bool
	onChange func(notifclient.State)
}

type session struct {
	ctrl *notifclient.Controller
	log  *logger.ZapLogger
}

func (s *session) close() {
	s.ctrl.Close()
	_ = s.log.Sync()
}

func newSession(opts sessionOptions) (*session, error) {
	token, err := loadToken()
	if err != nil && !(opts.anonymous && errors.Is(err, errNotLoggedIn)) {
		return nil, err
	}

	log := logger.NewIsolatedLogger(viper.GetString(keyLogFile))

	ctrlOpts := notifclient.Options{
		API:      notifclient.NewRESTClient(viper.GetString(keyServer), token),
		Store:    notifclient.NewFileStore(viper.GetString(keyPrefs)),
		Logger:   log,
		OnChange: opts.onChange,
	}
	if opts.push {
		ctrlOpts.Dialer = notifclient.NewWSDialer(pushURL(), token)
		ctrlOpts.Alerter = notifclient.NewTerminalAlerter(os.Stdout, true)
	}

	ctrl, err := notifclient.NewController(ctrlOpts)
	if err != nil {
		return nil, err
	}
	return &session{ctrl: ctrl, log: log}, nil
}

// withSession runs fn against a pull-only controller.
func withSession(ctx context.Context, fn func(ctx context.Context, c *notifclient.Controller) error) error {
	return runSession(ctx, sessionOptions{}, fn)
}

func runSession(ctx context.Context, opts sessionOptions, fn func(ctx context.Context, c *notifclient.Controller) error) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s.ctrl)
}
