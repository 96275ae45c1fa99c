package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"devicehub/devicemgr"
	"devicehub/kevent"
)

var watchSubsystem string

var watchCmd = &cobra.Command{
	Use:   "watch [device-path]",
	Short: "stream add/remove/move/change events, optionally filtered to one device node or subsystem",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSubsystem, "subsystem", "", "watch only this subsystem's add/remove events instead of a device path")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	m := newManager(ctx)

	switch {
	case watchSubsystem != "" && len(args) == 1:
		return fmt.Errorf("pass either a device path or --subsystem, not both")
	case watchSubsystem != "":
		return watchSubsystemEvents(ctx, m, watchSubsystem)
	case len(args) == 1:
		return watchNode(ctx, m, args[0])
	default:
		return watchAll(ctx, m)
	}
}

// watchAll is the unfiltered fallback: every kernel event observed, in
// arrival order.
func watchAll(ctx context.Context, m *devicemgr.Manager) error {
	events, cancel := m.Events().Subscribe(256)
	defer cancel()

	fmt.Println("watching for kernel events, Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

// watchNode subscribes to a single device node's broadcasters, per
// SPEC_FULL.md §4.13's "watch <path>".
func watchNode(ctx context.Context, m *devicemgr.Manager, path string) error {
	node := m.DeviceLookup(path)
	if node == nil {
		return fmt.Errorf("no device at %q", path)
	}

	remove, cancelRemove := node.OnRemove.Chan(64)
	change, cancelChange := node.OnChange.Chan(64)
	move, cancelMove := node.OnMove.Chan(64)
	online, cancelOnline := node.OnOnline.Chan(64)
	offline, cancelOffline := node.OnOffline.Chan(64)
	other, cancelOther := node.OnOther.Chan(64)
	defer cancelRemove()
	defer cancelChange()
	defer cancelMove()
	defer cancelOnline()
	defer cancelOffline()
	defer cancelOther()

	fmt.Printf("watching %s, Ctrl-C to stop\n", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-remove:
			printEvent(ev)
			return nil // the node is gone; nothing further to watch
		case ev := <-change:
			printEvent(ev)
		case ev := <-move:
			printEvent(ev)
		case ev := <-online:
			printEvent(ev)
		case ev := <-offline:
			printEvent(ev)
		case ev := <-other:
			printEvent(ev)
		}
	}
}

// watchSubsystemEvents subscribes to a subsystem's add/remove broadcasters,
// per SPEC_FULL.md §4.13's "watch --subsystem NAME".
func watchSubsystemEvents(ctx context.Context, m *devicemgr.Manager, name string) error {
	onAdd, onRemove, ok := m.SubsystemEvents(name)
	if !ok {
		return fmt.Errorf("unknown subsystem %q", name)
	}

	add, cancelAdd := onAdd.Chan(64)
	remove, cancelRemove := onRemove.Chan(64)
	defer cancelAdd()
	defer cancelRemove()

	fmt.Printf("watching subsystem %q, Ctrl-C to stop\n", name)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-add:
			printEvent(ev)
		case ev := <-remove:
			printEvent(ev)
		}
	}
}

func printEvent(ev kevent.Event) {
	fmt.Printf("%s %s\n", ev.Action, ev.DevPath)
}
