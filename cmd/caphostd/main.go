// Command caphostd spawns one plugin process per path given on the
// command line, attaches each over its own stdio pipes, and relays
// requests arriving on caphostd's own stdin/stdout to whichever plugin
// advertises the matching capability.
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/tetraplex/capmesh/host"
)

func main() {
	pluginPaths := os.Args[1:]
	if len(pluginPaths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: caphostd <plugin-path>...")
		os.Exit(1)
	}

	h := host.NewPluginHost()

	var cmds []*exec.Cmd
	for _, path := range pluginPaths {
		cmd := exec.Command(path)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			fmt.Fprintf(os.Stderr, "caphostd: stdin pipe for %s: %v\n", path, err)
			os.Exit(1)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			fmt.Fprintf(os.Stderr, "caphostd: stdout pipe for %s: %v\n", path, err)
			os.Exit(1)
		}
		if err := cmd.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "caphostd: starting %s: %v\n", path, err)
			os.Exit(1)
		}
		cmds = append(cmds, cmd)

		if _, err := h.AttachPlugin(stdout, stdin); err != nil {
			fmt.Fprintf(os.Stderr, "caphostd: attaching %s: %v\n", path, err)
			cmd.Process.Kill()
			os.Exit(1)
		}
	}

	defer func() {
		for _, cmd := range cmds {
			cmd.Process.Kill()
			cmd.Wait()
		}
	}()

	if err := h.Run(os.Stdin, os.Stdout, nil); err != nil {
		fmt.Fprintf(os.Stderr, "caphostd: relay loop exited: %v\n", err)
		os.Exit(1)
	}
}
