package commands

import (
	"context"
	"fmt"
	"strings"
)

// HelpCommand lists every command registered on router.
func HelpCommand(router *Router) *Command {
	return &Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "Display this help message.",
		Default: func(context.Context, *Request) ([]Reply, error) {
			p := router.Prefix()
			lines := []string{
				fmt.Sprintf("Here is a list of available commands. Note that you must put a `%s` or `/` in front of the command, or you can @ me. For example, `@Abyss help` and `%shelp` are both valid.", p, p),
			}
			for _, cmd := range router.Commands() {
				lines = append(lines, fmt.Sprintf("* `%s`: %s", cmd.Name, cmd.Description))
			}
			lines = append(lines, fmt.Sprintf("Most commands have help text to let you know how to use them, e.g. `%splay help`.", p))
			return Text(strings.Join(lines, "\n")), nil
		},
	}
}
