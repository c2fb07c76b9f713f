package cli

import (
	"context"
	"os"
	"os/exec"

	"linuxst/output"
	"linuxst/shutdown"
	"linuxst/toggle"

	"github.com/spf13/cobra"
)

func NewToggleCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Start recording, or stop the running recording (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(cmd, deps)
		},
	}
}

func NewStopCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running recording and deliver its transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps.initLog()
			f := deps.formatter()

			rec := deps.Marker().Live()
			if rec == nil {
				f.Info("not recording")
				return nil
			}
			ctx, release := shutdown.Context(context.Background())
			defer release()

			res, err := toggle.Stop(ctx, deps.toggleConfig(cmd), rec)
			return report(f, res, err)
		},
	}
}

func (d *Dependencies) toggleConfig(cmd *cobra.Command) toggle.Config {
	args := append([]string{"record", "--detached"}, d.passthroughArgs(cmd)...)
	return toggle.Config{
		Marker:      d.Marker(),
		StateDir:    d.Config.StateDir,
		StopTimeout: d.Config.StopTimeout,
		Command: func() *exec.Cmd {
			exe, err := os.Executable()
			if err != nil {
				exe = os.Args[0]
			}
			return exec.Command(exe, args...)
		},
	}
}

func runToggle(cmd *cobra.Command, d *Dependencies) error {
	d.initLog()
	ctx, release := shutdown.Context(context.Background())
	defer release()

	res, err := toggle.Toggle(ctx, d.toggleConfig(cmd))
	return report(d.formatter(), res, err)
}

func report(f *output.Formatter, res *toggle.Result, err error) error {
	if err != nil {
		return withCode(toggle.ExitCode(err), err)
	}
	switch res.Action {
	case toggle.Started:
		f.Started(res.PID)
	case toggle.Stopped:
		f.Stopped(res.PID, res.Outcome)
	}
	if code := res.ExitCode(); code != 0 {
		return silent{code: code}
	}
	return nil
}
