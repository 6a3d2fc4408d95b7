package main

import (
	"fmt"
	"os"

	"github.com/jibbrjabbr/jj/internal/errors"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jj",
		Short: "Serve server-scripted pages over WebSocket",
		Long: `jj runs host scripts on the server against live browser pages.

Each page connects over a WebSocket. Host scripts bind to DOM events,
read values from the browser as if they were local, and broadcast
updates to every connected page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		checkCmd(),
		versionCmd(),
	)
	return root
}

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
