package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "list every subsystem with at least one classified device",
	Args:  cobra.NoArgs,
	RunE:  runClasses,
}

var classCmd = &cobra.Command{
	Use:   "class <name>",
	Short: "list the devices classified under one subsystem",
	Args:  cobra.ExactArgs(1),
	RunE:  runClass,
}

func init() {
	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(classCmd)
}

func runClasses(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	m := newManager(ctx)

	names := m.ListDeviceClasses()
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runClass(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	m := newManager(ctx)

	devices := m.ListDevicesWithClass(args[0])
	sort.Strings(devices)
	for _, path := range devices {
		fmt.Println(path)
	}
	return nil
}
