package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"hoptrace/internal/models"
)

func newProfileCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage server profiles",
	}
	cmd.AddCommand(newProfileListCmd(root))
	cmd.AddCommand(newProfileAddCmd(root))
	cmd.AddCommand(newProfileRemoveCmd(root))
	return cmd
}

func newProfileListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			profiles, err := root.app.store.List()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Println(dimStyle.Render("no profiles stored"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tADDRESS\tUSER\tENV\tAUTH\tSTATUS")
			for _, p := range profiles {
				auth := "password"
				if p.KeyPath != "" {
					auth = "key"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Label, p.Addr(), p.Username, p.Environment, auth, renderStatus(p.Status))
			}
			return w.Flush()
		},
	}
}

func newProfileAddCmd(root *rootOptions) *cobra.Command {
	var (
		id          string
		host        string
		port        int
		username    string
		password    string
		keyPath     string
		label       string
		environment string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a profile",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			if password == "" && keyPath == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return fmt.Errorf("could not read password: %v", err)
				}
				password = strings.TrimSpace(string(raw))
			}

			profile := models.ServerProfile{
				ID:          id,
				Host:        host,
				Port:        port,
				Username:    username,
				Secret:      password,
				KeyPath:     keyPath,
				Label:       label,
				Environment: environment,
				Status:      models.StatusUnknown,
			}
			if err := root.app.store.Save(profile); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", successStyle.Render("saved"), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "profile id (generated when empty)")
	cmd.Flags().StringVar(&host, "host", "", "host name or address")
	cmd.Flags().IntVar(&port, "port", 22, "SSH port")
	cmd.Flags().StringVar(&username, "user", "", "login user")
	cmd.Flags().StringVar(&password, "password", "", "login password (prompted when no key is given)")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to a private key file")
	cmd.Flags().StringVar(&label, "label", "", "human readable label")
	cmd.Flags().StringVar(&environment, "env", "", "environment tag (prod, staging, ...)")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newProfileRemoveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id|label|host>",
		Short: "Remove a stored profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := findProfile(root.app, args[0])
			if err != nil {
				return err
			}
			if err := root.app.store.Delete(p.ID); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", successStyle.Render("removed"), p.ID)
			return nil
		},
	}
}
