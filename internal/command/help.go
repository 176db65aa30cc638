// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import (
	"strings"
)

// ShowHelp lists all commands grouped by category.
func ShowHelp(ctx *Context, registry *Registry) {
	ctx.Printf("\nAvailable commands:\n")

	categories := registry.ByCategory()
	for _, category := range categoryOrder {
		commands, exists := categories[category]
		if !exists || len(commands) == 0 {
			continue
		}

		ctx.Printf("\n%s:\n", category)
		for _, cmd := range commands {
			aliasStr := ""
			if len(cmd.Aliases) > 0 {
				aliasStr = " (aliases: " + strings.Join(cmd.Aliases, ", ") + ")"
			}
			ctx.Printf("  %-32s - %s%s\n", cmd.Usage, cmd.Description, aliasStr)
		}
	}

	ctx.Printf("\nFor detailed help on a command, type: help <command>\n")
}

// ShowCommandHelp prints the full help of one command.
func ShowCommandHelp(ctx *Context, cmd *Command) {
	ctx.Printf("\nCommand: %s\n", cmd.Name)

	if len(cmd.Aliases) > 0 {
		ctx.Printf("Aliases: %s\n", strings.Join(cmd.Aliases, ", "))
	}

	ctx.Printf("Usage: %s\n", cmd.Usage)
	ctx.Printf("Category: %s\n", cmd.Category)
	ctx.Printf("\nDescription:\n%s\n", cmd.Description)

	if cmd.LongHelp != "" {
		ctx.Printf("\nDetails:\n%s\n", cmd.LongHelp)
	}
}
