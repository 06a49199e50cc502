package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/session"
)

var (
	flagUsername string
	flagName     string
	flagPassword string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE:  runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the server",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored credential",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the stored credential",
	RunE:  runWhoami,
}

func init() {
	for _, c := range []*cobra.Command{signupCmd, loginCmd} {
		c.Flags().StringVarP(&flagUsername, "username", "u", "", "account username")
		c.Flags().StringVarP(&flagPassword, "password", "p", "", "password (prompted when omitted)")
	}
	signupCmd.Flags().StringVar(&flagName, "name", "", "display name")
}

func resolvePassword() (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	return promptLine("password: ")
}

func runSignup(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	password, err := resolvePassword()
	if err != nil {
		return err
	}
	return rt.session.Signup(cmd.Context(), session.SignupData{
		Username: flagUsername,
		Name:     flagName,
		Password: password,
	})
}

func runLogin(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	password, err := resolvePassword()
	if err != nil {
		return err
	}
	return rt.session.Login(cmd.Context(), session.LoginData{
		Username: flagUsername,
		Password: password,
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	rt.session.Logout(cmd.Context())
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.session.CheckAuth(cmd.Context()); err != nil {
		return err
	}
	ident, ok := rt.session.Identity()
	if !ok {
		return fmt.Errorf("not signed in")
	}
	fmt.Printf("%d\t@%s\t%s\n", ident.ID, ident.Username, ident.Name)
	return nil
}
