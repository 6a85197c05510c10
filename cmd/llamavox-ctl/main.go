package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"llamavox/internal/config"
	"llamavox/internal/ipc"
)

func main() {
	socket := cli.String("socket", config.DefaultSocket, "Control socket path")
	cli.Parse()

	cmd := ipc.CmdTrigger
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	if err := ipc.SendCommand(*socket, cmd); err != nil {
		fmt.Fprintln(os.Stderr, "llamavox not running:", err)
		os.Exit(1)
	}
}
