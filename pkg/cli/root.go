package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Env carries the output streams shared by every command
type Env struct {
	Out    io.Writer
	Log    *logrus.Logger
	Getenv func(string) string
}

// NewEnv returns an environment writing results to stdout and progress to stderr
func NewEnv() *Env {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &Env{Out: os.Stdout, Log: log, Getenv: os.Getenv}
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "rbacctl",
		Description: "rbacctl - storeadmin RBAC administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("rbacctl", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newMigrateCommand(),
		newSeedCommand(),
		newRolesCommand(),
		newCheckCommand(),
		newExportCommand(),
		newAuditCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}
	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage(env.Out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, env, args[1:])
	}
	return fmt.Errorf("unknown command: %s", args[0])
}

func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
