package restyutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mu       sync.Mutex
	messages map[string]string
}

func (o *memoryOutput) Write(id, contents string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages[id] = contents
}

func TestInstrumentClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Portal", "guap")
		w.Write([]byte("pong"))
	}))
	defer ts.Close()

	output := &memoryOutput{messages: map[string]string{}}
	client := resty.New()
	InstrumentClient(client, nil, output)

	_, err := client.R().SetBody("ping").Post(ts.URL + "/probe")
	require.NoError(t, err)
	_, err = client.R().Get(ts.URL)
	require.NoError(t, err)

	require.Len(t, output.messages, 2)
	first := output.messages["1"]
	require.Contains(t, first, "---- REQUEST ----")
	require.Contains(t, first, "POST "+ts.URL+"/probe")
	require.Contains(t, first, "ping")
	require.Contains(t, first, "X-Portal: guap")
	require.Contains(t, first, "pong")

	second := output.messages["2"]
	require.Contains(t, second, "GET "+ts.URL)
	require.Contains(t, second, "pong")
}

func TestFormatRequestBody(t *testing.T) {
	testCases := []struct {
		name     string
		getBody  func() (io.ReadCloser, error)
		expected string
	}{
		{name: "NoGetBody"},
		{
			name:    "NilBody",
			getBody: func() (io.ReadCloser, error) { return nil, nil },
		},
		{
			name:    "NoBody",
			getBody: func() (io.ReadCloser, error) { return http.NoBody, nil },
		},
		{
			name: "Body",
			getBody: func() (io.ReadCloser, error) {
				return io.NopCloser(strings.NewReader(`{"username":"ivanov"}`)), nil
			},
			expected: `{"username":"ivanov"}`,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "https://pro.guap.ru/", nil)
			req.GetBody = test.getBody
			require.Equal(t, test.expected, formatRequestBody(req))
		})
	}
}

func TestInstrumentClientWithoutOutput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := resty.New()
	InstrumentClient(client, nil, nil)
	res, err := client.R().Get(ts.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode())
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "resty")
	require.NoError(t, os.MkdirAll(dir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale"), []byte("old"), 0600))

	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	output.Write("1", "contents")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	contents, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.Equal(t, "contents", string(contents))
}
