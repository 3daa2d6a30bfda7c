package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"studybot/internal/app"
	"studybot/internal/domain"
	"studybot/internal/storage"
	"studybot/pkg/logx"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "studybot",
		Short:         "Telegram bot that schedules and posts lessons",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the bot (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	})
	root.AddCommand(newLessonsCmd(&cfgPath))
	return root
}

func runBot(ctx context.Context, cfgPath string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	<-a.Done()
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}

func newLessonsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lessons",
		Short: "Inspect and maintain stored lessons without running the bot",
	}

	open := func(cmd *cobra.Command, readOnly bool) (*app.Offline, error) {
		return app.OpenOffline(cmd.Context(), *cfgPath, logx.NewConsole("warn"), readOnly)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending lessons in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			off, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer off.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tCHAT\tTOPIC\tIMAGE\tTEXT")
			for _, l := range off.Repo.List() {
				chat := "default"
				if l.GroupChatID != 0 {
					chat = strconv.FormatInt(l.GroupChatID, 10)
				}
				fmt.Fprintf(tw, "%s\t%s (%s)\t%s\t%d\t%t\t%s\n",
					l.ID,
					l.At.In(off.Location).Format("2006-01-02 15:04"),
					humanize.Time(l.At),
					chat,
					l.TopicID,
					l.HasImage(),
					l.Preview(50),
				)
			}
			return tw.Flush()
		},
	})

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the lessons backup document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			off, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer off.Close()

			b, at, err := off.Repo.Export()
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if out == "" {
				out = storage.ExportFileName(at.In(off.Location))
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d lessons, %s)\n", out, off.Repo.Len(), humanize.Bytes(uint64(len(b))))
			return nil
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", `output file ("-" for stdout; default lessons_backup_<timestamp>.json)`)
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID...",
		Short: "Delete lessons by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer off.Close()

			var missing []string
			for _, id := range args {
				if !off.Repo.Delete(cmd.Context(), id, 0) {
					missing = append(missing, id)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			if len(missing) > 0 {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, strings.Join(missing, ", "))
			}
			return nil
		},
	})
	return cmd
}
