// Package cli implements the modeldump command.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kisielk/modeldump"
)

// EnvPrefix prefixes environment variables that set flag defaults, e.g.
// MODELDUMP_STYLE.
const EnvPrefix = "MODELDUMP"

// Options connects the command to its environment.
type Options struct {
	Fs     afero.Fs  // model input and report output
	Stdout io.Writer // report output when no --output is given
	Stderr io.Writer // logs and errors
}

// Settings is the command configuration after flags, environment and the
// config file are merged.
type Settings struct {
	Style              string
	Title              string
	ExtraFileSizeLimit int64
	StrictJSON         bool
	CatchInvalidUTF8   bool
	Output             string
	Debug              bool
}

// RootCommand creates the modeldump command.
func RootCommand(opts Options) *cobra.Command {
	v := viper.New()
	v.SetFs(opts.Fs)

	cmd := &cobra.Command{
		Use:   "modeldump [flags] MODEL",
		Short: "Dump the structure of a TorchScript model archive",
		Long: `Dump the structure of a TorchScript model archive as JSON,
or as a self-contained HTML page for viewing in a browser.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, loadSettings(v), args[0])
		},
	}
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)

	if err := setupFlags(cmd, v); err != nil {
		panic(err)
	}
	return cmd
}

// Execute runs the command with args. Errors are also printed to
// opts.Stderr.
func Execute(opts Options, args []string) error {
	cmd := RootCommand(opts)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// setupFlags defines the command flags and binds them into v.
func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	flags.String("style", string(modeldump.StyleJSON), "Output style: json or html")
	flags.String("title", "", "Title of the report (default is the model path)")
	flags.Int64("extra-file-size-limit", modeldump.DefaultExtraFileSizeLimit, "Largest extra JSON file or rendered pickle to include, in bytes")
	flags.Bool("strict-json", false, "Fail on malformed extra JSON files instead of skipping them")
	flags.Bool("catch-invalid-utf8", false, "Decode invalid UTF-8 strings in pickles as UnicodeDecodeError objects")
	flags.StringP("output", "o", "", "Write the report to a file instead of stdout")
	flags.BoolP("debug", "d", false, "Enable debug logging")
	flags.String("config", "", "Config file with flag defaults (yaml, toml or json)")

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// readConfig reads the config file named by --config, if any.
func readConfig(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func loadSettings(v *viper.Viper) *Settings {
	return &Settings{
		Style:              v.GetString("style"),
		Title:              v.GetString("title"),
		ExtraFileSizeLimit: v.GetInt64("extra-file-size-limit"),
		StrictJSON:         v.GetBool("strict-json"),
		CatchInvalidUTF8:   v.GetBool("catch-invalid-utf8"),
		Output:             v.GetString("output"),
		Debug:              v.GetBool("debug"),
	}
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(opts Options, s *Settings, model string) (err error) {
	style, err := modeldump.ParseStyle(s.Style)
	if err != nil {
		return err
	}

	logger := newLogger(opts.Stderr, s.Debug)
	logger.Debug("dumping model", "model", model, "style", style, "limit", s.ExtraFileSizeLimit)

	report, err := modeldump.ExtractFile(opts.Fs, model, &modeldump.Config{
		Title:              s.Title,
		ExtraFileSizeLimit: s.ExtraFileSizeLimit,
		StrictExtraJSON:    s.StrictJSON,
		CatchInvalidUTF8:   s.CatchInvalidUTF8,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	if s.Output == "" || s.Output == "-" {
		return modeldump.Render(opts.Stdout, report, style)
	}

	f, err := opts.Fs.Create(s.Output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := modeldump.Render(f, report, style); err != nil {
		return err
	}
	logger.Debug("report written", "output", s.Output)
	return nil
}
