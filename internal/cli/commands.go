package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkit/pkg/broadcast"
	"github.com/spf13/cobra"
)

func (r *Runtime) loginCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				p, err := r.readPassword()
				if err != nil {
					return err
				}
				password = p
			}

			return r.withEnv(cmd.Context(), func(env *Env) error {
				if err := env.Session.SignIn(cmd.Context(), email, password); err != nil {
					return err
				}
				fmt.Fprintf(r.Out, "signed in as %s\n", env.Session.User().Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", envOr("SESSIONCTL_PASSWORD", ""), "account password (read from stdin when empty)")
	return cmd
}

func (r *Runtime) readPassword() (string, error) {
	fmt.Fprint(r.Err, "password: ")
	line, err := bufio.NewReader(r.In).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("empty password")
	}
	return line, nil
}

func (r *Runtime) whoamiCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Load the persisted session and show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withEnv(cmd.Context(), func(env *Env) error {
				if err := env.Session.Init(cmd.Context()); err != nil {
					return err
				}
				user := env.Session.User()
				if user == nil {
					return authsdk.ErrNotAuthenticated
				}

				if asJSON {
					enc := json.NewEncoder(r.Out)
					enc.SetIndent("", "  ")
					return enc.Encode(user)
				}
				fmt.Fprintln(r.Out, user.Email)
				fmt.Fprintf(r.Out, "permissions: %s\n", strings.Join(user.Permissions, ", "))
				fmt.Fprintf(r.Out, "roles: %s\n", strings.Join(user.Roles, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the user as JSON")
	return cmd
}

func (r *Runtime) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET a path with the session's bearer token, refreshing it if expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}

			return r.withEnv(cmd.Context(), func(env *Env) error {
				resp, err := env.Client.Send(cmd.Context(), authsdk.Request{
					Method: http.MethodGet,
					Path:   path,
				})
				if err != nil {
					return err
				}
				_, err = r.Out.Write(resp.Body)
				if err == nil && len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
					_, err = fmt.Fprintln(r.Out)
				}
				return err
			})
		},
	}
}

func (r *Runtime) logoutCommand() *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withEnv(cmd.Context(), func(env *Env) error {
				if err := env.Session.SignOut(cmd.Context(), notify); err != nil {
					return err
				}
				fmt.Fprintln(r.Out, "signed out")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "tell other running contexts to sign out too")
	return cmd
}

func (r *Runtime) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print sign-out notifications from other contexts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return r.withEnv(ctx, func(env *Env) error {
				self := env.Session.ID()
				cancel, err := env.Channel.Subscribe(ctx, func(msg broadcast.Message) {
					if msg.Origin == self {
						return
					}
					fmt.Fprintf(r.Out, "%s %s from %s\n",
						time.Now().Format(time.RFC3339), msg.Kind, msg.Origin)
				})
				if err != nil {
					return err
				}
				defer cancel()

				fmt.Fprintf(r.Out, "watching as %s\n", self)
				<-ctx.Done()
				return nil
			})
		},
	}
}
