package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/calendar"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/freshcache"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/serviceutil"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/services/faqbot"
)

var fetchBaseUrl *string
var fetchDebugDir *string

func init() {
	fetchBaseUrl = fetchCmd.Flags().String("base-url", "https://www.tppcrpg.net", "The site to scrape.")
	fetchDebugDir = fetchCmd.Flags().String("debug-dir", "", "Dump request/response transcripts to this directory.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <feed>",
	Short: "Scrapes and parses one feed right now, bypassing the cache.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute*2)
		defer cancel()

		client := createClient(ctx, *fetchBaseUrl, *fetchDebugDir)
		defer client.Close()

		service := faqbot.NewService(
			client,
			freshcache.NewMemoryStore(16, time.Hour),
			calendar.New(time.Minute),
			nil,
		)
		for _, feed := range faqbot.DefaultFeeds() {
			err := service.RegisterFeed(feed)
			if err != nil {
				serviceutil.Fatal("failed to register feed", err)
			}
		}

		entry, err := service.Refresh(ctx, args[0])
		if err != nil {
			serviceutil.Fatal("refresh failed", err)
		}
		fmt.Println(string(entry.Payload))
	},
}
