package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coffersTech/als/internal/codec"
	"github.com/coffersTech/als/internal/engine"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/storage"
)

type queryOptions struct {
	instance string
	role     string
	params   engine.Params
	asJSON   bool
}

func addQueryFlags(cmd *cobra.Command, o *queryOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.instance, "instance", "i", "", "Instance name (default: latest instance of --role)")
	f.StringVar(&o.role, "role", "Standalone", "Role used to pick the latest instance")
	f.StringVarP(&o.params.SessionID, "session", "s", "", "Session id (default: latest session)")
	f.StringVar(&o.params.Context, "context", model.AllContexts, "Caller label to match")
	f.StringVarP(&o.params.Message, "message", "m", "", "Case-sensitive message substring")
	f.StringVarP(&o.params.Level, "level", "l", model.AllLevels, "Level to match")
	f.StringVarP(&o.params.Expr, "query", "q", "", "NanoQL expression")
	f.BoolVar(&o.params.Descending, "desc", false, "Newest first")
	f.BoolVarP(&o.params.Aggregate, "group", "g", false, "Group identical messages per source")
	f.BoolVar(&o.params.IgnoreSizeCheck, "force", false, "Parse files above the size limit")
	f.BoolVar(&o.params.IgnoreEntryLimit, "all", false, "Do not warn about very large results")
	f.BoolVar(&o.asJSON, "json", false, "Print records as JSON lines")
}

// resolve fills in the instance and session defaults.
func (o *queryOptions) resolve() (engine.Params, error) {
	p := o.params
	p.Instance = o.instance
	if p.Instance == "" {
		latest, err := store.LatestInstance(storage.ParseRole(o.role))
		if err != nil {
			return p, err
		}
		p.Instance = latest
	}
	if p.SessionID == "" {
		latest, err := qe.LatestSession(p.Instance, p.IgnoreSizeCheck)
		if err != nil {
			return p, err
		}
		p.SessionID = latest
	}
	return p, nil
}

var queryOpts queryOptions

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a viewer query over one instance file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := queryOpts.resolve()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := engine.NewViewer(qe, nil).IssueSync(ctx, p)
		if err != nil {
			return err
		}
		if res.Warning != "" {
			fmt.Fprintln(os.Stderr, res.Warning)
		}
		return printRecords(cmd.OutOrStdout(), res.Records, queryOpts.asJSON)
	},
}

var followOpts queryOptions

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Re-run a viewer query whenever the instance file changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := followOpts.resolve()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		loop := engine.NewMainLoop(0, logger)
		viewer := engine.NewViewer(qe, loop)
		out := cmd.OutOrStdout()
		var shown uint64

		follower := engine.NewFollower(viewer, p, func(res engine.Result, err error) {
			if err != nil {
				fmt.Fprintln(os.Stderr, engine.UserMessage(err))
				return
			}
			// Only records newer than the last refresh are printed.
			var fresh []model.Record
			for _, r := range res.Records {
				if r.Counter > shown {
					fresh = append(fresh, r)
				}
			}
			for _, r := range res.Records {
				shown = max(shown, r.Counter)
			}
			if err := printRecords(out, fresh, followOpts.asJSON); err != nil {
				logger.Error(err, "print failed")
			}
		}, logger)

		errc := make(chan error, 1)
		go func() {
			errc <- follower.Run(ctx)
			loop.Close()
		}()
		loop.Run(ctx)
		return <-errc
	},
}

var sessionsOpts queryOptions

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions of an instance, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		instance := sessionsOpts.instance
		if instance == "" {
			latest, err := store.LatestInstance(storage.ParseRole(sessionsOpts.role))
			if err != nil {
				return err
			}
			instance = latest
		}
		sessions, err := qe.Sessions(instance, sessionsOpts.params.IgnoreSizeCheck)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

var contextsOpts queryOptions

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "List the contexts logged in a session, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := contextsOpts.resolve()
		if err != nil {
			return err
		}
		contexts, err := qe.Contexts(p.Instance, p.SessionID, p.IgnoreSizeCheck)
		if err != nil {
			return err
		}
		for _, c := range contexts {
			fmt.Fprintln(cmd.OutOrStdout(), c.Raw)
		}
		return nil
	},
}

var listArchived bool

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List instance files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := store.ListInstances(listArchived || cfg.IncludeArchived)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED\tARCHIVED")
		for _, inst := range list {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%t\n", inst.Name, inst.Size, codec.FormatTime(inst.ModTime), inst.Archived)
		}
		return tw.Flush()
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Move old or oversized instance files into the archive directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report := store.Rotate(cfg.MaxFileAgeDays, cfg.MaxParseSizeMiB)
		for _, a := range report.Archived {
			fmt.Fprintln(cmd.OutOrStdout(), "archived", a)
		}
		for _, f := range report.Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "failed %s: %v\n", f.Path, f.Err)
		}
		return nil
	},
}

var (
	exportOpts queryOptions
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the result of a viewer query to a compressed snapshot file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := exportOpts.resolve()
		if err != nil {
			return err
		}
		p.IgnoreEntryLimit = true
		res, err := qe.Run(cmd.Context(), p, nil)
		if err != nil {
			return err
		}
		w, err := storage.NewSnapshotWriter()
		if err != nil {
			return err
		}
		if err := w.WriteSnapshot(exportOut, res.Records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", len(res.Records), exportOut)
		return nil
	},
}

var snapshotJSON bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [file]",
	Short: "Print the records of a snapshot written by export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := storage.NewSnapshotReader()
		if err != nil {
			return err
		}
		records, err := r.ReadSnapshot(args[0], nil)
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), records, snapshotJSON)
	},
}

func init() {
	addQueryFlags(queryCmd, &queryOpts)
	addQueryFlags(followCmd, &followOpts)
	addQueryFlags(exportCmd, &exportOpts)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "export.snap", "Snapshot file to write")

	sessionsCmd.Flags().StringVarP(&sessionsOpts.instance, "instance", "i", "", "Instance name (default: latest instance of --role)")
	sessionsCmd.Flags().StringVar(&sessionsOpts.role, "role", "Standalone", "Role used to pick the latest instance")
	sessionsCmd.Flags().BoolVar(&sessionsOpts.params.IgnoreSizeCheck, "force", false, "Parse files above the size limit")

	contextsCmd.Flags().StringVarP(&contextsOpts.instance, "instance", "i", "", "Instance name (default: latest instance of --role)")
	contextsCmd.Flags().StringVar(&contextsOpts.role, "role", "Standalone", "Role used to pick the latest instance")
	contextsCmd.Flags().StringVarP(&contextsOpts.params.SessionID, "session", "s", "", "Session id (default: latest session)")
	contextsCmd.Flags().BoolVar(&contextsOpts.params.IgnoreSizeCheck, "force", false, "Parse files above the size limit")

	instancesCmd.Flags().BoolVar(&listArchived, "archived", false, "Include archived instances")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Print records as JSON lines")
}

func printRecords(w io.Writer, records []model.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range records {
		msg := strings.ReplaceAll(r.Message, "\n", " ")
		if r.Period != "" {
			msg += " " + r.Period
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Counter, codec.FormatTime(r.Timestamp), r.Level, r.Caller, r.SourceID, msg)
	}
	return tw.Flush()
}
