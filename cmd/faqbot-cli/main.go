package main

import (
	"context"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/cmd/faqbot-cli/commands"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
)

func main() {
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
