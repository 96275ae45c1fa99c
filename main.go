// devicehub is a CLI front end onto the device manager and terminal I/O
// core: it enumerates sysfs, tracks the live kernel device tree, and
// exposes it (and raw device handles) to the shell.
//
// Commands:
//
//	ls       - list every device currently known to the manager
//	classes  - list every subsystem with at least one classified device
//	class    - list the devices classified under one subsystem
//	watch    - stream add/remove/move events as they're observed
//	term     - attach an interactive raw-mode session to a device handle
//	version  - print version information
package main

import (
	"fmt"
	"os"

	"devicehub/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
