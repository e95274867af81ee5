// Command ftm is a thin HTTP client over ftmd's API; it carries no engine
// logic of its own. Subcommands are dispatched from the table below, one
// file per subcommand.
package main

import (
	"fmt"
	"os"
)

const (
	bin     = "ftm"
	usage   = `Usage:
	ftm <command> [arguments]

Commands:
	checkout <dir>                check out a directory for tracking
	ls [--include-deleted]         list tracked files
	history <file>                  show a file's recorded history
	restore <file> <checksum>       restore a file to a prior checksum
	scan                            run a full scan immediately
	clean                           run trim and orphan GC immediately
	config get <key>                read a config value
	config set <key> <value>        write a config value
	logs                             print the daemon's newest log file
	version                          print the client version
	stop                             ask the daemon to shut down

Environment:
	FTM_ADDR   daemon address, default 127.0.0.1:7777
`
	version = "0.1.0"
)

type command func(args []string) error

var commands = map[string]command{
	"checkout": cmdCheckout,
	"ls":       cmdList,
	"history":  cmdHistory,
	"restore":  cmdRestore,
	"scan":     cmdScan,
	"clean":    cmdClean,
	"config":   cmdConfig,
	"logs":     cmdLogs,
	"version":  cmdVersion,
	"stop":     cmdStop,
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		showUsage()
		os.Exit(1)
	}

	if err := cmd(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, bin+":", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Print(usage)
}
