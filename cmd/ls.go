package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "list every device currently known to the manager",
	Args:  cobra.NoArgs,
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	m := newManager(ctx)

	devices := m.ListDevices()
	sort.Strings(devices)
	for _, path := range devices {
		node := m.DeviceLookup(path)
		if node == nil || node.Device == nil {
			continue
		}
		fmt.Printf("%s\t%s\t%d:%d\t%s\n", path, node.Device.Kind, node.Device.ID.Major, node.Device.ID.Minor, node.Subsystem)
	}
	return nil
}
