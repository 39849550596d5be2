package serviceutil

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartHttpServer(t *testing.T) {
	server, err := StartHttpServer(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	require.NoError(t, err)

	res, err := http.Get("http://" + server.Addr)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))

	ShutdownHttpServer(server, time.Second)
	_, err = http.Get("http://" + server.Addr)
	require.Error(t, err)
}
