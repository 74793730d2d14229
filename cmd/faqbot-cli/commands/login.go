package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/restyutil"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/scrapers/tppc"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/serviceutil"
)

var loginBaseUrl *string
var loginDebugDir *string

func init() {
	loginBaseUrl = loginCmd.Flags().String("base-url", "https://www.tppcrpg.net", "The site to log into.")
	loginDebugDir = loginCmd.Flags().String("debug-dir", "", "Dump request/response transcripts to this directory.")
	rootCmd.AddCommand(loginCmd)
}

func createClient(ctx context.Context, baseUrl, debugDir string) *tppc.Client {
	creds, err := tppc.CredentialsFromEnv()
	if err != nil {
		serviceutil.Fatal("TPPC_USERNAME / TPPC_PASSWORD must be set", err)
	}
	if debugDir != "" {
		tppc.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(debugDir))
	}
	client, err := tppc.NewClient(ctx, tppc.ClientOptions{
		BaseUrl:     baseUrl,
		Credentials: creds,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize scraping client", err)
	}
	return client
}

var loginCmd = &cobra.Command{
	Use:   "login [--base-url <url>]",
	Short: "Verifies the configured credentials against the live site.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		client := createClient(ctx, *loginBaseUrl, *loginDebugDir)
		defer client.Close()

		err := client.Login(ctx, true)
		if err != nil {
			serviceutil.Fatal("login failed", err)
		}
		fmt.Printf("logged in, %d session cookie(s) held\n", client.Jar().Len())
	},
}
