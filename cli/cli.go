package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/sokinpui/changepipe/internal/config"
)

// Config holds all the command-line flag values, merged with the config
// file.
type Config struct {
	Workspace      string
	Extensions     []string
	Buffer         bool
	Yes            bool
	RejectAll      bool
	Stream         string
	Follow         string
	Input          string
	JournalPath    string
	NoJournal      bool
	Undo           bool
	Redo           bool
	HostRPC        string
	Editor         string
	HighlightStyle string
	NoAnimation    bool
	LogLevel       string
	LogFile        string
	ConfigPath     string
}

// ErrHelp is returned when --help was requested; usage has been printed.
var ErrHelp = pflag.ErrHelp

// ParseFlags defines and parses command-line flags using pflag.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:], os.Stderr)
}

// Parse parses args, loads the config file and lets flags override it.
func Parse(args []string, stderr io.Writer) (*Config, error) {
	cfg := &Config{}
	fs := pflag.NewFlagSet("changepipe", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&cfg.Workspace, "workspace", "w", "", "Workspace root that relative paths are resolved against (default: current directory).")
	fs.StringSliceVarP(&cfg.Extensions, "extension", "e", []string{}, "Only apply edits to files with these extensions (e.g., 'py', 'ts').")
	fs.BoolVarP(&cfg.Buffer, "buffer", "b", false, "Load proposed content into Neovim buffers without writing to disk.")
	fs.BoolVarP(&cfg.Yes, "yes", "y", false, "Accept all proposed changes without review.")
	fs.BoolVar(&cfg.RejectAll, "reject-all", false, "Reject all proposed changes (dry run).")
	fs.StringVarP(&cfg.Stream, "stream", "s", "", "Follow a growing thinking-JSON response file and show its trace.")
	fs.StringVar(&cfg.Follow, "follow", "", "Follow a growing markdown response file until it goes idle.")
	fs.StringVar(&cfg.JournalPath, "journal", "", "Path of the undo journal (default: <workspace>/.changepipe/journal.db).")
	fs.BoolVar(&cfg.NoJournal, "no-journal", false, "Do not record applied changes for undo.")
	fs.StringVar(&cfg.HostRPC, "host-rpc", "", "Use a host filesystem over JSON-RPC (ws://, wss://, tcp://, unix://).")
	fs.StringVar(&cfg.Editor, "editor", "", "Preview collaborator: 'nvim' or 'none'.")
	fs.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn or error.")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/changepipe/config.yaml).")

	// Mutually exclusive history group
	fs.BoolVarP(&cfg.Undo, "undo", "u", false, "Undo the last applied batch.")
	fs.BoolVarP(&cfg.Redo, "redo", "r", false, "Redo the last undone batch.")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: changepipe [flags] [response.md]")
		fmt.Fprintln(stderr, "\nReview and apply the ```lang:path code blocks of a model response.")
		fmt.Fprintln(stderr, "Content is read from the file argument, stdin (pipe) or the clipboard.")
		fmt.Fprintln(stderr, "\nExample: pbpaste | changepipe -e ts")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	// pflag prints its own parse errors; ours go to the same place.
	fail := func(err error) (*Config, error) {
		fmt.Fprintln(stderr, err)
		return nil, err
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return fail(fmt.Errorf("error: expected at most one input file, got %d", fs.NArg()))
	}
	cfg.Input = fs.Arg(0)

	// Validate mutually exclusive flags
	if cfg.Undo && cfg.Redo {
		return fail(errors.New("error: --undo and --redo are mutually exclusive"))
	}
	if cfg.Yes && cfg.RejectAll {
		return fail(errors.New("error: --yes and --reject-all are mutually exclusive"))
	}
	if cfg.Stream != "" && cfg.Follow != "" {
		return fail(errors.New("error: --stream and --follow are mutually exclusive"))
	}

	if err := cfg.mergeFile(fs); err != nil {
		return fail(fmt.Errorf("error: %w", err))
	}
	cfg.Extensions = config.NormalizeExtensions(cfg.Extensions)
	return cfg, nil
}

// mergeFile fills every flag the user did not set from the config file.
func (c *Config) mergeFile(fs *pflag.FlagSet) error {
	path := c.ConfigPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			// No config directory; flags alone are fine.
			return nil
		}
	}
	file, err := config.Load(path)
	if err != nil {
		return err
	}

	setIfUnchanged := func(name string, dst *string, v string) {
		if !fs.Changed(name) && v != "" {
			*dst = v
		}
	}
	setIfUnchanged("workspace", &c.Workspace, file.Workspace)
	setIfUnchanged("journal", &c.JournalPath, file.JournalPath)
	setIfUnchanged("host-rpc", &c.HostRPC, file.HostRPC)
	setIfUnchanged("editor", &c.Editor, file.Editor)
	setIfUnchanged("log-level", &c.LogLevel, file.LogLevel)
	c.HighlightStyle = file.HighlightStyle
	c.LogFile = file.LogFile
	if !fs.Changed("extension") && len(file.Extensions) > 0 {
		c.Extensions = file.Extensions
	}

	merged := config.File{Editor: c.Editor, LogLevel: c.LogLevel}
	return merged.Validate()
}
