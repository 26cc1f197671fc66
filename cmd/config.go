package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage GazeCapture configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "nano"
		}

		// make sure there is something to edit
		if _, err := os.Stat(cfg.Path()); os.IsNotExist(err) {
			if err := cfg.Save(); err != nil {
				return err
			}
		}

		fmt.Printf("Opening %s with %s...\n", cfg.Path(), editor)
		c := exec.Command(editor, cfg.Path())
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		return c.Run()
	},
}

var configSetDirCmd = &cobra.Command{
	Use:   "set-dir <path>",
	Short: "Set the recordings directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.SetRecordingsDirectory(args[0]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("✓ ") + "recordings_directory: " + cfg.RecordingsDirectory)
		return nil
	},
}

var configUserInfoCmd = &cobra.Command{
	Use:   "user-info",
	Short: "Edit the user info written with every attempt",
}

var configUserInfoSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Add or update a user info entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.SetUserInfo(args[0], args[1]); err != nil {
			return err
		}
		return cfg.Save()
	},
}

var configUserInfoRemoveCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove a user info entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.RemoveUserInfo(args[0])
		return cfg.Save()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configSetDirCmd)
	configCmd.AddCommand(configUserInfoCmd)

	configUserInfoCmd.AddCommand(configUserInfoSetCmd)
	configUserInfoCmd.AddCommand(configUserInfoRemoveCmd)
}
