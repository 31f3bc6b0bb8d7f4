package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"vocalsnr/pkg/build"
)

// Commands selected by ParseArgs.
const (
	CommandMeter    = ""
	CommandList     = "list"
	CommandBaseline = "baseline"
	CommandTest     = "test"
	CommandServe    = "serve"
)

// Options holds the parsed command line. Flags left unset do not override
// the configuration file.
type Options struct {
	Command     string
	ConfigPath  string
	Verbose     bool
	Interactive bool

	DeviceID    int
	DeviceSet   bool
	InputFile   string
	Paced       bool
	Duration    time.Duration
	DurationSet bool

	// Exit is set when cobra handled the invocation itself (help, version).
	Exit bool
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{DeviceID: -1, Paced: true, Exit: true}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandMeter
			options.Exit = false
			options.DeviceSet = cmd.Flags().Changed("device")
			return nil
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	selectCommand := func(name string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			options.Command = name
			options.Exit = false
			options.DeviceSet = cmd.Flags().Changed("device")
			options.DurationSet = cmd.Flags().Changed("duration")
			return nil
		}
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE:  selectCommand(CommandList),
	}
	listCmd.Flags().BoolVarP(&options.Interactive, "interactive", "i", false,
		"Pick an input device interactively and print its ID")

	baselineCmd := &cobra.Command{
		Use:   "baseline",
		Short: "Record the background noise baseline in a quiet room",
		Args:  cobra.NoArgs,
		RunE:  selectCommand(CommandBaseline),
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Measure SNR against the recorded baseline",
		Args:  cobra.NoArgs,
		RunE:  selectCommand(CommandTest),
	}
	testCmd.Flags().DurationVar(&options.Duration, "duration", 0,
		"Stop the test after this long (0 runs until interrupted)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run headless, streaming events over websocket and UDP",
		Args:  cobra.NoArgs,
		RunE:  selectCommand(CommandServe),
	}

	rootCmd.AddCommand(listCmd, baselineCmd, testCmd, serveCmd)

	rootCmd.PersistentFlags().StringVar(&options.ConfigPath, "config", "",
		"Configuration file (default: config.yaml if present)")
	rootCmd.PersistentFlags().IntVarP(&options.DeviceID, "device", "d", -1,
		"Input device ID for the raw source. Use 'list' to see available devices.")
	rootCmd.PersistentFlags().StringVarP(&options.InputFile, "input-file", "f", "",
		"Replay a 44.1 kHz mono 16-bit WAV file instead of capturing")
	rootCmd.PersistentFlags().BoolVar(&options.Paced, "paced", true,
		"Replay the input file in real time")
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}
