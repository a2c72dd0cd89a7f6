package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/DevHatRo/clamd-go/internal/server"
)

func newScanCmd(a *app) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "scan [path...]",
		Short: "Scan files, or standard input when no path or '-' is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var reports []report
			if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
				res, err := a.client.ScanReader(ctx, cmd.InOrStdin(), "stream")
				reports = append(reports, newReport("stream", res, err))
			} else {
				for r := range a.client.ScanMany(ctx, args, workers) {
					reports = append(reports, newReport(r.Path, r.Result, r.Err))
				}
				sort.Slice(reports, func(i, j int) bool { return reports[i].Target < reports[j].Target })
			}

			if err := a.printer(cmd).reports(reports); err != nil {
				return err
			}
			if code := exitCode(reports); code != exitClean {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Parallel scans when several paths are given")
	return cmd
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that clamd answers PING",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.client.Primary()
			if err != nil {
				return err
			}
			alive, err := a.client.Ping(cmd.Context(), t)
			status := map[string]interface{}{"transport": t, "alive": alive}
			if err != nil {
				status["error"] = err.Error()
			}
			if perr := a.printer(cmd).value(status, func(w io.Writer) {
				if alive {
					fmt.Fprintln(w, color.FgLightGreen.Render("PONG"))
				} else {
					fmt.Fprintln(w, color.FgLightRed.Render(err.Error()))
				}
			}); perr != nil {
				return perr
			}
			if !alive {
				return &exitError{code: exitFailure}
			}
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine and signature database versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.client.Primary()
			if err != nil {
				return err
			}
			v, err := a.client.Version(cmd.Context(), t)
			if err != nil {
				return err
			}
			return a.printer(cmd).value(v, func(w io.Writer) {
				fmt.Fprintf(w, "ClamAV %s\n", v.ClamAVVersion)
				if v.SignatureVersion != "" {
					fmt.Fprintf(w, "Signatures %s (%s)\n", v.SignatureVersion, v.SignatureDate)
				}
			})
		},
	}
}

func newSelfTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Scan a clean sample and the EICAR test file and check both verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.client.SelfTest(cmd.Context())
			status := map[string]interface{}{"passed": err == nil}
			if err != nil {
				status["error"] = err.Error()
			}
			if perr := a.printer(cmd).value(status, func(w io.Writer) {
				if err == nil {
					fmt.Fprintln(w, color.FgLightGreen.Render("self test passed"))
				} else {
					fmt.Fprintln(w, color.FgLightRed.Render("self test failed: "+err.Error()))
				}
			}); perr != nil {
				return perr
			}
			if err != nil {
				return &exitError{code: exitFailure}
			}
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP scan API and gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := a.settings.Serve
			return server.Run(ctx, a.client, server.Options{
				HTTPAddr:       s.HTTPAddr,
				GRPCAddr:       s.GRPCAddr,
				HealthInterval: s.HealthInterval,
				MaxUpload:      s.MaxUploadMB << 20,
			}, a.log)
		},
	}
	return cmd
}
