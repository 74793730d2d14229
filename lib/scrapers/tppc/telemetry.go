package tppc

import (
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/restyutil"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
)

var tracer = telemetry.Tracer("faqbot.lib.scrapers.tppc")
var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput must be called before clients are created.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
