package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers handlers on http.DefaultServeMux
	"time"
)

const pprofAddr = "localhost:6060"

// startPprof serves the pprof endpoints in the background. Loopback only;
// gated behind the pprof_enabled config flag.
func startPprof() {
	srv := &http.Server{
		Addr:              pprofAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		Logger().Info("pprof_server_start", slog.String("addr", pprofAddr))
		if err := srv.ListenAndServe(); err != nil {
			Logger().Error("pprof_server_error", slog.String("error", err.Error()))
		}
	}()
}
