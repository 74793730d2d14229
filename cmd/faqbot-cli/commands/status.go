package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	configsqlite "github.com/darknesspwnsu/tppc-faqbot-sub004/lib/configutil/sqlite"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/freshcache"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/serviceutil"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/timezone"
)

var statusDb *string

func init() {
	statusDb = statusCmd.Flags().String("db", "faqbot.db", "The feed cache database to inspect.")
	rootCmd.AddCommand(statusCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

var statusCmd = &cobra.Command{
	Use:   "status [--db <path/to/faqbot.db>]",
	Short: "Shows every cached feed and when it was last refreshed.",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := configsqlite.Struct{File: *statusDb}.OpenDB(freshcache.Schema)
		if err != nil {
			serviceutil.Fatal("failed to open database", err)
		}
		store, err := freshcache.NewSqliteStore(db)
		if err != nil {
			serviceutil.Fatal("failed to initialize feed store", err)
		}

		entries, err := store.List(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list cached feeds", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Key", "Updated (ET)", "Age", "Bytes"})
		now := timezone.Now()
		for _, entry := range entries {
			t.AppendRow(table.Row{
				entry.Key,
				entry.UpdatedAt.In(timezone.Location).Format(time.DateTime),
				now.Sub(entry.UpdatedAt).Round(time.Second),
				fmt.Sprintf("%d", len(entry.Payload)),
			})
		}
		t.Render()
	},
}
