// Package cli implements portalctl, a command-line client for the portal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iliyamo/radiology-portal/internal/client"
)

// app carries the resolved settings shared by every command.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCmd builds the portalctl command tree.  Settings resolve in the
// usual viper order: flag, PORTALCTL_* env var, config file, default.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Command-line client for the radiology portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(); err != nil {
				return err
			}
			_, err := parseFormat(a.v.GetString("output"))
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is $HOME/.portalctl.yaml)")
	pf.StringP("server", "s", "http://localhost:8080", "portal base url")
	pf.StringP("output", "o", "table", "output format (table, json, yaml)")
	pf.String("token-file", "", "where the session token is kept (default is $HOME/.portalctl/token)")
	pf.Duration("timeout", 30*time.Second, "per-request timeout")
	for _, k := range []string{"server", "output", "token-file", "timeout"} {
		_ = a.v.BindPFlag(k, pf.Lookup(k))
	}

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.studiesCmd(),
		a.reportsCmd(),
		a.templatesCmd(),
		a.auditCmd(),
		a.healthCmd(),
	)
	return root
}

// Execute runs portalctl with os.Args and reports errors on stderr.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".portalctl")
	}

	a.v.SetEnvPrefix("PORTALCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) tokenStore() (*client.FileTokenStore, error) {
	path := a.v.GetString("token-file")
	if path == "" {
		var err error
		if path, err = client.DefaultTokenPath(); err != nil {
			return nil, err
		}
	}
	return client.NewFileTokenStore(path), nil
}

// session builds a client-backed session.  When restore is set the stored
// token must still be accepted by the server.
func (a *app) session(ctx context.Context, restore bool) (*client.Session, error) {
	c, err := client.New(a.v.GetString("server"), client.WithTimeout(a.v.GetDuration("timeout")))
	if err != nil {
		return nil, err
	}
	store, err := a.tokenStore()
	if err != nil {
		return nil, err
	}
	s := client.NewSession(c, store)
	if !restore {
		return s, nil
	}
	ok, err := s.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotLoggedIn
	}
	return s, nil
}

var errNotLoggedIn = errors.New("not logged in; run `portalctl login`")

func (a *app) printer(w io.Writer) printer {
	f, _ := parseFormat(a.v.GetString("output"))
	return printer{w: w, format: f}
}
