package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"loom/internal/session"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update the signed-in user's profile",
}

var profileSetNameCmd = &cobra.Command{
	Use:   "set-name <name>",
	Short: "Change the display name",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSetName,
}

var profileSetPictureCmd = &cobra.Command{
	Use:   "set-picture <file>",
	Short: "Upload a new profile picture",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSetPicture,
}

func init() {
	profileCmd.AddCommand(profileSetNameCmd, profileSetPictureCmd)
}

func runProfileSetName(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.session.CheckAuth(cmd.Context()); err != nil {
		return err
	}
	return rt.session.UpdateProfile(cmd.Context(), session.ProfileUpdate{Name: args[0]})
}

func runProfileSetPicture(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.session.CheckAuth(cmd.Context()); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	url, err := rt.session.UpdateProfilePicture(cmd.Context(), filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}
