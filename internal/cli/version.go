package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/crgimenes/glazejs"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the glazejs version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "glazejs %s (%s %s/%s)\n",
				glazejs.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
