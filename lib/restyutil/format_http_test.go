package restyutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestFormatHeadersEmpty(t *testing.T) {
	require.Equal(t, "", formatHeaders(http.Header{}))
}

func TestFormatHeadersSortedAndMultiValue(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Add("Content-Type", "text/html")
	require.Equal(
		t,
		"Content-Type: text/html\nSet-Cookie: a=1\nSet-Cookie: b=2",
		formatHeaders(h),
	)
}

type captureOutput struct {
	mu    sync.Mutex
	wrote map[string]string
}

func (c *captureOutput) Write(id string, contents string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wrote[id] = contents
}

func TestInstrumentClientWritesTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	out := &captureOutput{wrote: map[string]string{}}
	client := resty.New().SetBaseURL(server.URL)
	InstrumentClient(client, nil, out)

	// a bare GET carries no body and few headers, the transcript must
	// render it without complaint
	_, err := client.R().Get("/page.php")
	require.NoError(t, err)

	require.Len(t, out.wrote, 1)
	transcript := out.wrote["1"]
	require.Contains(t, transcript, "GET")
	require.Contains(t, transcript, "---- RESPONSE ----")
	require.Contains(t, transcript, "hello")
}
