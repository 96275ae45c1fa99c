package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devicehub/termio"
)

var termCmd = &cobra.Command{
	Use:   "term <device-path>",
	Short: "attach an interactive raw-mode session to a tracked device handle",
	Args:  cobra.ExactArgs(1),
	RunE:  runTerm,
}

func init() {
	rootCmd.AddCommand(termCmd)
}

// runTerm wires a device handle's reader/writer cores (termio) directly to
// the controlling terminal's stdin/stdout, mirroring the teacher's exec.go
// raw-mode attach loop but pumped through the asynchronous termio cores
// instead of io.Copy.
func runTerm(cmd *cobra.Command, args []string) error {
	m := newManager(GetContext())

	handle, err := m.GetDeviceHandleByName(args[0])
	if err != nil {
		return err
	}
	defer m.ReleaseDeviceHandle(handle)

	var restore func()
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("make terminal raw: %w", err)
		}
		restore = func() { term.Restore(int(os.Stdin.Fd()), oldState) }
		defer restore()
	}

	in := termio.NewInputCore(handle, 4096)
	out := termio.NewOutputCore(handle)

	done := make(chan struct{})
	go pumpStdinToHandle(os.Stdin, out, done)
	pumpHandleToStdout(in, os.Stdout)
	<-done
	return nil
}

func pumpStdinToHandle(stdin io.Reader, out *termio.OutputCore, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := stdin.Read(buf)
		if n > 0 {
			out.WriteBytes(append([]byte(nil), buf[:n]...)).Wait()
		}
		if err != nil {
			return
		}
	}
}

// pumpHandleToStdout echoes one byte at a time via WaitForKey: ReadBytes
// only completes its waiter once its buffer fills or the stream ends, so a
// 4096-byte buffer would hold the session silent until that much output
// had accumulated — wrong for an interactive tty, where every byte should
// echo immediately.
func pumpHandleToStdout(in *termio.InputCore, stdout io.Writer) {
	for {
		b, err := in.WaitForKey()
		if err == nil {
			stdout.Write([]byte{b})
			continue
		}
		return
	}
}
