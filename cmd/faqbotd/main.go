package main

import (
	"context"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/calendar"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/configutil"
	configsqlite "github.com/darknesspwnsu/tppc-faqbot-sub004/lib/configutil/sqlite"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/freshcache"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/restyutil"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/scrapers/tppc"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/serviceutil"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/services/faqbot"
)

type Config struct {
	BaseUrl  string              `json:"base_url"`
	Database configsqlite.Struct `json:"database"`
	Smtp     faqbot.SmtpConfig   `json:"smtp"`
	// RestyDebugDir, when set, dumps every request/response
	// transcript to disk for replaying parse failures
	RestyDebugDir string `json:"resty_debug_dir"`
	// PageCacheDir, when set, keeps a badger corpus of every raw page
	// fetched, keyed by normalized url
	PageCacheDir string `json:"page_cache_dir"`
}

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.InitSlog(false)

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.BaseUrl == "" {
		config.BaseUrl = "https://www.tppcrpg.net"
	}
	if config.RestyDebugDir != "" {
		tppc.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(config.RestyDebugDir))
	}

	t, err := telemetry.SetupFromEnv(ctx, "faqbotd")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	db, err := config.Database.OpenDB(freshcache.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	store, err := freshcache.NewSqliteStore(db)
	if err != nil {
		serviceutil.Fatal("failed to initialize feed store", err)
	}

	creds, err := tppc.CredentialsFromEnv()
	if err != nil {
		serviceutil.Fatal("TPPC_USERNAME / TPPC_PASSWORD must be set", err)
	}
	client, err := tppc.NewClient(ctx, tppc.ClientOptions{
		BaseUrl:     config.BaseUrl,
		Credentials: creds,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize scraping client", err)
	}
	defer client.Close()

	service := faqbot.NewService(
		client,
		store,
		calendar.New(faqbot.DefaultTickInterval),
		faqbot.NewAlerter(config.Smtp),
	)
	if config.PageCacheDir != "" {
		pagesDb, err := badger.Open(badger.DefaultOptions(config.PageCacheDir).WithLogger(nil))
		if err != nil {
			serviceutil.Fatal("failed to open page cache", err)
		}
		defer pagesDb.Close()
		service.RecordPagesTo(freshcache.NewBadgerStore(pagesDb))
	}
	for _, feed := range faqbot.DefaultFeeds() {
		err := service.RegisterFeed(feed)
		if err != nil {
			serviceutil.Fatal("failed to register feed", err)
		}
	}

	service.Start(ctx)
	slog.InfoContext(ctx, "faqbotd running", "base_url", config.BaseUrl)

	<-ctx.Done()
}
