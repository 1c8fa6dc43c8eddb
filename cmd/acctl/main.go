// acctl is the operator tool for the AC bridge.
//
// It manages the IR code library (list, learn, copy), issues API
// credentials (token, hash-key) and asks a running bridge to reload.
//
// Usage:
//
//	acctl [-config path] <command> [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
)

// Default configuration file path, shared with acbridge.
const defaultConfigPath = "configs/config.yaml"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks a command-line mistake. The usage text has already been
// printed when it is returned.
var errUsage = errors.New("usage error")

// command is one acctl subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *cliEnv, args []string) error
}

var commands = []command{
	{"list", "list devices in the code library", cmdList},
	{"learn", "learn an IR code from a remote and record it", cmdLearn},
	{"copy", "replace a device's codes with another device's", cmdCopy},
	{"reload", "ask the running bridge to reload its device library", cmdReload},
	{"token", "issue an API bearer token", cmdToken},
	{"hash-key", "hash an API key for security.api_keys", cmdHashKey},
}

// cliEnv carries what every subcommand needs.
type cliEnv struct {
	configPath string
	out        *printer

	// loaded lazily, hash-key needs no config
	cfg *config.Config
}

// config loads the configuration file on first use.
func (e *cliEnv) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	e.cfg = cfg
	return cfg, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run parses the global flags, dispatches to a subcommand and maps the
// result to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("acctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", getConfigPath(), "path to config.yaml")
	global.Usage = func() { usage(stderr) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if global.NArg() == 0 {
		fmt.Fprintln(stderr, "Missing command")
		usage(stderr)
		return exitUsage
	}

	name := global.Arg(0)
	cmd, ok := lookupCommand(name)
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		usage(stderr)
		return exitUsage
	}

	env := &cliEnv{
		configPath: *configPath,
		out:        newPrinter(stdout, stderr),
	}
	err := cmd.run(ctx, env, global.Args()[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		env.out.Fail("%v", err)
		return exitError
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:\n  acctl [-config path] <command> [flags]\n\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "\nRun 'acctl <command> -h' for command flags.")
}

// getConfigPath returns the configuration file path.
// Uses ACBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
