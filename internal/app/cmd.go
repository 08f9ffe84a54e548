package app

import (
	"fmt"
	"io"
	"strings"
)

// Command はsmolhub-serverのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck" // distrolessイメージのHEALTHCHECK用
	CommandHelp        Command = "help"
)

// commands はサブコマンドと説明。Usageはこの順に表示する。
var commands = []struct {
	cmd   Command
	usage string
}{
	{CommandServe, "start the identity, row and blob API (default)"},
	{CommandWorker, "purge expired sign-in sessions periodically"},
	{CommandMigrate, "apply pending database migrations and exit"},
	{CommandHealthcheck, "probe GET /health on SERVER_PORT and exit"},
	{CommandHelp, "show this help"},
}

// ParseCommand はos.Args[1:]の先頭からサブコマンドを解析する。
// 引数がない場合はCommandServe。2つ目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	name := args[0]
	switch name {
	case "-h", "--help":
		return CommandHelp, nil
	}
	for _, c := range commands {
		if string(c.cmd) == name {
			return c.cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (available: %s)", name, strings.Join(commandNames(), ", "))
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, string(c.cmd))
	}
	return names
}

// Usage はサブコマンドの一覧をwに書き出す。
func Usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: smolhub-server [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.usage)
	}
}
