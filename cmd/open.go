package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <device-path>",
	Short: "mint an ephemeral device node for a tracked device and leave it open",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	m := newManager(ctx)

	handle, err := m.GetDeviceHandleByName(args[0])
	if err != nil {
		return err
	}
	defer m.ReleaseDeviceHandle(handle)

	fmt.Fprintf(os.Stderr, "opened %s, Ctrl-C to release\n", args[0])
	<-ctx.Done()
	return nil
}
