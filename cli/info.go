package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linuxst/audio"
	"linuxst/backup"
	"linuxst/config"
	"linuxst/doctor"
	"linuxst/marker"
	"linuxst/session"
	"linuxst/shutdown"
	"linuxst/transcriber"
	"linuxst/version"

	"github.com/spf13/cobra"
)

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a recording is running and how the last one ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := deps.formatter()
			m := deps.Marker()

			if rec := m.Live(); rec != nil {
				f.Success("recording")
				f.Field("pid", fmt.Sprint(rec.PID))
				f.Field("session", rec.SessionID)
				f.Field("elapsed", formatSince(rec.StartedAt))
			} else {
				f.Info("idle")
				if rec, err := m.Read(); err == nil && !marker.Alive(rec.PID, rec.Exe) {
					f.Warning(fmt.Sprintf("stale marker from pid %d will be cleared on next start", rec.PID))
				}
			}

			o, err := session.ReadOutcome(deps.Config.StateDir)
			if err != nil {
				return nil
			}
			fmt.Fprintln(deps.Out)
			fmt.Fprintln(deps.Out, "last session:")
			f.Field("state", o.State)
			if o.Message != "" {
				f.Field("result", o.Message)
			}
			if o.Delivery != "" {
				f.Field("delivery", o.Delivery)
			}
			f.Field("audio", fmt.Sprintf("%.1fs", o.AudioSeconds))
			f.Field("finished", o.FinishedAt.Local().Format(time.DateTime))
			return nil
		},
	}
}

func formatSince(t time.Time) string {
	return fmt.Sprintf("%s (since %s)", time.Since(t).Round(time.Second), t.Local().Format(time.TimeOnly))
}

func NewLastCmd(deps *Dependencies) *cobra.Command {
	var copyText bool

	cmd := &cobra.Command{
		Use:   "last",
		Short: "Print the last saved transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := deps.formatter()
			entry, err := backup.New(deps.Config.BackupDir).Load()
			if errors.Is(err, backup.ErrNoBackup) {
				return errors.New("no transcript saved yet")
			}
			if err != nil {
				return err
			}
			if copyText {
				if err := deps.Clipboard(entry.Text); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				f.Success(fmt.Sprintf("copied %d chars to the clipboard", len(entry.Text)))
				return nil
			}
			f.Transcript(entry.Text, entry.SavedAt)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&copyText, "copy", "c", false, "copy the transcript to the clipboard")
	return cmd
}

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := deps.formatter()
			actx, err := deps.NewAudio()
			if err != nil {
				return withCode(session.ExitDevice, fmt.Errorf("cannot connect to audio: %w", err))
			}
			defer actx.Close()

			devices, err := actx.Devices()
			if err != nil {
				return withCode(session.ExitDevice, fmt.Errorf("cannot list devices: %w", err))
			}
			if len(devices) == 0 {
				f.Warning("no capture devices found")
				return nil
			}
			for i, d := range devices {
				f.DeviceListItem(i, d.Name, d.ID, audio.IsBluetooth(d.Name))
			}
			if deps.Config.Device != "" {
				f.Field("configured", deps.Config.Device)
			}
			return nil
		},
	}
}

func NewSetupCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Pick a microphone and save it to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := deps.formatter()
			actx, err := deps.NewAudio()
			if err != nil {
				return withCode(session.ExitDevice, fmt.Errorf("cannot connect to audio: %w", err))
			}
			defer actx.Close()

			dev, err := audio.SelectDevice(actx, deps.Out)
			if errors.Is(err, audio.ErrSelectionCancelled) {
				f.Info("cancelled")
				return nil
			}
			if err != nil {
				return withCode(session.ExitDevice, err)
			}
			if err := config.SaveDevice(deps.Config.ConfigPath, dev.Name); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			f.Success(fmt.Sprintf("saved %q to %s", dev.Name, deps.Config.ConfigPath))
			return nil
		},
	}
}

func NewTranscribeCmd(deps *Dependencies) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe a WAV file and print timings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := deps.formatter()
			buf, err := audio.ReadWAVFile(args[0])
			if err != nil {
				return err
			}
			engine, err := transcriber.New(deps.Config.Transcriber())
			if err != nil {
				return err
			}

			ctx, release := shutdown.Context(context.Background())
			defer release()

			fmt.Fprintf(deps.Out, "%s: %s of audio, %d runs with %s\n", args[0], buf.Duration().Round(time.Millisecond), runs, engine.Name())
			for i := 1; i <= runs; i++ {
				start := time.Now()
				text, err := engine.Transcribe(ctx, buf)
				if err != nil {
					return withCode(session.ExitTranscription, err)
				}
				if text == "" {
					text = "(no speech detected)"
				}
				fmt.Fprintf(deps.Out, "=== Run %d (%s) ===\n", i, time.Since(start).Round(time.Millisecond))
				fmt.Fprintln(deps.Out, text)
				if r, ok := engine.(*transcriber.Remote); ok {
					if m := r.LastMetrics(); m != nil {
						f.Field("network", m.String())
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&runs, "runs", "n", 1, "number of iterations")
	return cmd
}

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	var live time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check microphone, engine and delivery prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := doctor.DefaultEnv(deps.Config)
			env.NewAudio = deps.NewAudio
			if code := doctor.Run(env, deps.Out); code != 0 {
				return silent{code: code}
			}
			if live <= 0 {
				return nil
			}
			fmt.Fprintln(deps.Out)
			ctx, release := shutdown.Context(context.Background())
			defer release()
			return doctor.Live(ctx, env, live, deps.Out)
		},
	}

	cmd.Flags().DurationVar(&live, "live", 0, "also record for this long and print the transcription")
	return cmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}

