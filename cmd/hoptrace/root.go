package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"hoptrace/internal/config"
	"hoptrace/internal/crypto"
	"hoptrace/internal/models"
	"hoptrace/internal/ssh"
)

const passphraseEnv = "HOPTRACE_PASSPHRASE"

// app carries the wired-up dependencies every subcommand works against.
type app struct {
	store    *config.Store
	settings *config.Settings
	service  *ssh.Service
	logger   *log.Logger
}

type rootOptions struct {
	profilePath  string
	settingsPath string
	passphrase   string
	verbose      bool

	app *app
}

func (r *rootOptions) prepare() error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	logger.SetLevel(log.WarnLevel)
	if r.verbose {
		logger.SetLevel(log.DebugLevel)
	}

	passphrase := r.passphrase
	if passphrase == "" {
		passphrase = os.Getenv(passphraseEnv)
	}

	store := config.NewStore(r.profilePath, crypto.NewCipher(passphrase))

	settings, err := config.LoadSettings(r.settingsPath)
	if err != nil {
		return err
	}

	service := ssh.NewService(store, ssh.ServiceSettings{
		ConnectTimeout: settings.ConnectTimeout(),
		ExecTimeout:    settings.ExecTimeout(),
		SearchWorkers:  settings.SearchWorkers,
		TraceMaxDepth:  settings.TraceMaxDepth,
		ReadMaxLines:   settings.ReadMaxLines,
		OutputCap:      settings.ExecMaxOutput,
	}, logger)

	r.app = &app{store: store, settings: settings, service: service, logger: logger}
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "hoptrace",
		Short:         "Trace request chains and search logs across SSH hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.profilePath, "profiles", "", "path to the profile file (default ~/.config/hoptrace/servers.json)")
	rootCmd.PersistentFlags().StringVar(&opts.settingsPath, "settings", "", "path to the settings file (default ~/.config/hoptrace/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.passphrase, "passphrase", "", "profile encryption passphrase (default $"+passphraseEnv+")")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return opts.prepare()
	}

	rootCmd.AddCommand(newProfileCmd(opts))
	rootCmd.AddCommand(newTestCmd(opts))
	rootCmd.AddCommand(newExecCmd(opts))
	rootCmd.AddCommand(newReadCmd(opts))
	rootCmd.AddCommand(newSearchCmd(opts))
	rootCmd.AddCommand(newTraceCmd(opts))
	rootCmd.AddCommand(newAttachCmd(opts))

	return rootCmd
}

// findProfile resolves a single profile by id, label or host.
func findProfile(a *app, key string) (*models.ServerProfile, error) {
	profiles, err := a.store.List()
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		p := &profiles[i]
		if p.ID == key || p.Label == key || p.Host == key {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no profile matches %q", key)
}

// selectProfiles resolves the keys to stored profiles, or filters by
// environment, or returns every profile when neither is given. The result
// keeps a stable host order so repeated runs line up.
func selectProfiles(a *app, keys []string, environment string) ([]models.ServerProfile, error) {
	if len(keys) > 0 {
		selected := make([]models.ServerProfile, 0, len(keys))
		for _, key := range keys {
			p, err := findProfile(a, key)
			if err != nil {
				return nil, err
			}
			selected = append(selected, *p)
		}
		return selected, nil
	}

	profiles, err := a.store.List()
	if err != nil {
		return nil, err
	}
	if environment != "" {
		filtered := profiles[:0]
		for _, p := range profiles {
			if strings.EqualFold(p.Environment, environment) {
				filtered = append(filtered, p)
			}
		}
		profiles = filtered
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles selected")
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Host < profiles[j].Host })
	return profiles, nil
}
