package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"linuxst/audio"
	"linuxst/config"
	"linuxst/delivery"
	"linuxst/log"
	"linuxst/marker"
	"linuxst/notify"
	"linuxst/output"
	"linuxst/session"
	"linuxst/version"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	configPath  string
	logPath     string
	device      string
	engine      string
	delivery    string
	language    string
	maxDuration time.Duration
	stopTimeout time.Duration
}

// Dependencies is shared by every command once the root has parsed its flags.
type Dependencies struct {
	Config *config.Config
	Out    io.Writer
	Err    io.Writer

	// System hooks, replaced in tests.
	NewAudio  func() (audio.Context, error)
	Clipboard delivery.ClipboardWriter
	Notify    notify.Sender // nil uses desktop notifications

	opts     options
	rootCmd  *cobra.Command
	logReady bool
}

func (d *Dependencies) Marker() *marker.Marker { return marker.New(d.Config.StateDir) }

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil && code == 0 {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("exit status %d", code)
	}
	return &exitError{code: code, err: err}
}

// silent marks an exit status whose cause was already printed.
type silent struct{ code int }

func (s silent) Error() string { return fmt.Sprintf("exit status %d", s.code) }

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "linuxst",
		Short: "Toggle dictation: run once to record, again to transcribe and type",
		Long: "linuxst records from the microphone until it is invoked a second time, then\n" +
			"transcribes the audio and types it into the focused window (X11) or places it\n" +
			"on the clipboard (Wayland). Bind it to a keyboard shortcut.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(cmd, deps)
		},
	}
	deps.rootCmd = rootCmd

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&deps.opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/linuxst/config.toml)")
	pf.StringVar(&deps.opts.logPath, "logpath", "", "log directory path (use ./ for current dir)")
	pf.StringVarP(&deps.opts.device, "device", "d", "", "capture device: index, name or substring")
	pf.StringVarP(&deps.opts.engine, "engine", "e", "", "transcription engine: whisper, groq or openai")
	pf.StringVar(&deps.opts.delivery, "delivery", "", "output delivery: auto, keystroke or clipboard")
	pf.StringVarP(&deps.opts.language, "lang", "l", "", "language code for transcription")
	pf.DurationVar(&deps.opts.maxDuration, "max-duration", 0, "stop recording after this long (0 = until toggled)")
	pf.DurationVar(&deps.opts.stopTimeout, "stop-timeout", 0, "how long a stop waits before killing the recorder")

	rootCmd.AddCommand(NewToggleCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewStopCmd(deps))
	rootCmd.AddCommand(NewStatusCmd(deps))
	rootCmd.AddCommand(NewLastCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewSetupCmd(deps))
	rootCmd.AddCommand(NewTranscribeCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func (d *Dependencies) load() error {
	cfg, err := config.Load(d.opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o := d.opts
	if o.device != "" {
		cfg.Device = o.device
	}
	if o.engine != "" {
		cfg.Engine = o.engine
	}
	if o.delivery != "" {
		cfg.Delivery = o.delivery
	}
	if o.language != "" {
		cfg.Language = o.language
	}
	if o.maxDuration > 0 {
		cfg.MaxDuration = o.maxDuration
	}
	if o.stopTimeout > 0 {
		cfg.StopTimeout = o.stopTimeout
	}
	if o.logPath != "" {
		cfg.LogPath = o.logPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	d.Config = cfg
	if d.NewAudio == nil {
		d.NewAudio = audio.NewContext
	}
	if d.Clipboard == nil {
		d.Clipboard = delivery.SystemClipboard
	}
	return nil
}

// initLog opens the diagnostic log. Failures are reported and otherwise
// ignored.
func (d *Dependencies) initLog() {
	if d.logReady {
		return
	}
	d.logReady = true
	logPath, err := log.ResolveDir(d.Config.LogPath)
	if err != nil {
		fmt.Fprintf(d.Err, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(d.Err, "Warning: could not create log directory: %v\n", err)
		return
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(d.Err, "Warning: could not init logging: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format(time.DateTime), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
}

// passthroughArgs repeats the global flags the user set so a spawned
// recorder sees the same configuration.
func (d *Dependencies) passthroughArgs(cmd *cobra.Command) []string {
	var args []string
	persistent := d.rootCmd.PersistentFlags()
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if persistent.Lookup(f.Name) != nil {
			args = append(args, "--"+f.Name+"="+f.Value.String())
		}
	})
	return args
}

func (d *Dependencies) formatter() *output.Formatter { return output.NewFormatter(d.Out) }

// Execute runs the command line and returns the process exit status.
func Execute(args []string, stdout, stderr io.Writer) int {
	deps := &Dependencies{Out: stdout, Err: stderr}
	root := NewRootCmd(deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	defer log.Close()
	if err == nil {
		return session.ExitOK
	}

	var s silent
	if errors.As(err, &s) {
		return s.code
	}
	output.NewFormatter(stderr).Error(err.Error())
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return session.ExitFailed
}
