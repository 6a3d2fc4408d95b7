package main

import (
	"fmt"
	"os"

	"github.com/jibbrjabbr/jj/internal/config"
	"github.com/jibbrjabbr/jj/internal/errors"
	"github.com/jibbrjabbr/jj/pkg/script"
	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check [script...]",
		Short: "Compile host scripts without serving them",
		Long: `Compile host scripts and report syntax errors.

With no arguments, every script named in the project configuration is
checked.

Examples:
  jj check
  jj check hosts/chat.js hosts/game.js`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				for _, h := range cfg.Hosts {
					paths = append(paths, cfg.ScriptPath(h))
				}
			}
			return runCheck(cmd, paths)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", ".", "Config file or project directory")

	return cmd
}

func runCheck(cmd *cobra.Command, paths []string) error {
	failed := 0
	for _, path := range paths {
		if _, err := loadScript(path); err != nil {
			failed++
			errorMsg(cmd, "%s", path)
			errors.PrintError(cmd.ErrOrStderr(), err)
			continue
		}
		success(cmd, "%s", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed to compile", failed, len(paths))
	}
	return nil
}

// loadScript compiles the script at path, reporting failures as coded
// errors that point at the offending line.
func loadScript(path string) (*script.Program, error) {
	prog, err := script.Load(path)
	if err == nil {
		return prog, nil
	}
	if os.IsNotExist(err) {
		return nil, errors.New("JJ202").
			WithDetail("No script at " + path).
			Wrap(err)
	}
	return nil, errors.New("JJ201").
		WithLocationFromError(err, func(string) string { return path }).
		Wrap(err)
}
