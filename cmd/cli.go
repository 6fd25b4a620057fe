// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"linein/internal/build"
	"linein/internal/config"
)

// Command is the action main should perform after parsing.
type Command string

const (
	CommandNone Command = ""
	CommandTUI  Command = "tui"
	CommandList Command = "list"
	CommandRun  Command = "run"
)

// Options is the parsed command line: the command plus the effective
// configuration with flag overrides applied.
type Options struct {
	Command    Command
	Config     *config.Config
	ConfigPath string
	Verbose    bool

	// Device names from --input/--output when they are not numeric ids.
	InputName  string
	OutputName string
}

type flagValues struct {
	configPath string
	backend    string
	input      string
	output     string
	loopback   bool
	sampleRate float64
	blockSize  int
	lowLatency bool
	inputFile  string
	verbose    bool
}

// ParseArgs parses args (without the program name). For --help and
// --version the returned Options has CommandNone.
func ParseArgs(args []string) (*Options, error) {
	info := build.Get()
	options := &Options{}
	flags := &flagValues{}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.apply(cmd, options)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandTUI
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	// Headless monitor
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor the input without the terminal UI, streaming frames to the configured transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return nil
		},
	}
	rootCmd.AddCommand(runCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "f", "",
		"Path to a YAML config file (default: "+config.DefaultPath+" if present)")

	// Audio Device Configuration
	pf.StringVar(&flags.backend, "backend", config.BackendPortAudio,
		"Audio backend: portaudio, miniaudio or file")
	pf.StringVarP(&flags.input, "input", "i", "",
		"Input device id or name. Use 'list' command to see available devices.")
	pf.StringVarP(&flags.output, "output", "o", "",
		"Output device id or name used for loopback")
	pf.BoolVarP(&flags.loopback, "loopback", "l", false,
		"Pass the input through to the output device")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", 44100,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.blockSize, "block-size", "b", 1024,
		"Frames per block and FFT size (power of 2, affects latency)")
	pf.BoolVar(&flags.lowLatency, "low-latency", false,
		"Use low latency mode for real-time processing")
	pf.StringVar(&flags.inputFile, "input-file", "",
		"WAV file replayed as the input device (file backend)")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// apply loads the config file and overlays the flags the user set.
func (f *flagValues) apply(cmd *cobra.Command, options *Options) error {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	if changed("backend") {
		cfg.Audio.Backend = f.backend
	}
	if changed("input-file") {
		cfg.Audio.InputFile = f.inputFile
		if !changed("backend") {
			cfg.Audio.Backend = config.BackendFile
		}
		if !changed("sample-rate") {
			cfg.Audio.SampleRate = 0
		}
	}
	if changed("input") {
		if id, err := strconv.Atoi(f.input); err == nil {
			cfg.Audio.InputDevice = id
		} else {
			options.InputName = f.input
		}
	}
	if changed("output") {
		if id, err := strconv.Atoi(f.output); err == nil {
			cfg.Audio.OutputDevice = id
		} else {
			options.OutputName = f.output
		}
	}
	if changed("loopback") {
		cfg.Audio.Loopback = f.loopback
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("block-size") {
		cfg.Audio.BlockSize = f.blockSize
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("verbose") && f.verbose {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	options.Config = cfg
	options.ConfigPath = f.configPath
	options.Verbose = cfg.Debug
	return nil
}
