package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"
)

// RunFunc is the root command's main body. Options are loaded and validated
// before it is called.
type RunFunc func() error

// NamedFlagSetOptions is implemented by a command's option tree.
type NamedFlagSetOptions interface {
	// Flags returns the option flags grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete fills in derived or defaulted fields.
	Complete() error
	// Validate checks the final option values.
	Validate() error
}

// App is a cobra command whose options come from flags, environment and a
// config file, in that order of precedence.
type App struct {
	name          string
	shortDesc     string
	description   string
	options       NamedFlagSetOptions
	runFunc       RunFunc
	args          cobra.PositionalArgs
	commands      []*cobra.Command
	defaultConfig string
	configHooks   []ConfigHook
	cmd           *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithOptions sets the options the App loads and validates before running.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the root command's run function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithValidArgs sets the positional argument validator.
func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithCommands adds subcommands. They share the root's options.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

// WithDefaultConfigFile sets the config file read when --config is not
// given. A leading "~/" expands to the home directory; a missing file is
// not an error.
func WithDefaultConfigFile(path string) Option {
	return func(a *App) { a.defaultConfig = path }
}

// WithConfigHook registers a hook run after the configuration is read and
// before options are decoded.
func WithConfigHook(hook ConfigHook) Option {
	return func(a *App) { a.configHooks = append(a.configHooks, hook) }
}

// NewApp creates an App and builds its command.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
	}
	for _, o := range opts {
		o(a)
	}

	a.buildCommand()
	return a
}

// Command returns the root cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	addConfigFlag(namedFlagSets.FlagSet("global"))

	fs := cmd.PersistentFlags()
	for _, f := range namedFlagSets.FlagSets {
		fs.AddFlagSet(f)
	}

	cmd.AddCommand(a.commands...)
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.load(cmd)
	}
	if a.runFunc != nil {
		cmd.RunE = func(cmd *cobra.Command, _ []string) error {
			return a.runFunc()
		}
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, cols)

	a.cmd = cmd
}

// load reads configuration for the command being executed and decodes it
// into the App's options.
func (a *App) load(cmd *cobra.Command) error {
	if err := bindFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := readConfig(a.defaultConfig, a.configHooks); err != nil {
		return err
	}
	if a.options == nil {
		return nil
	}
	return Unmarshal(a.options)
}
