package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var srv *http.Server

// Start mounts /metrics on bindAddress:port, grounded on
// metrics/webserver.go's Init/Reload/Stop shape. A second call after Stop
// restarts the listener, e.g. on a config hot-reload that changes the
// bind address or port.
func Start(bindAddress string, port int) {
	rtr := http.NewServeMux()
	rtr.Handle("/metrics", promhttp.Handler())

	address := bindAddress + ":" + strconv.Itoa(port)
	srv = &http.Server{Addr: address, Handler: rtr}
	go func() {
		logrus.WithField("address", address).Info("metrics: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Error("metrics: server error: ", err)
		}
	}()
}

// Stop shuts down the metrics listener, if one is running.
func Stop() {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Warn("metrics: shutdown error: ", err)
	}
	srv = nil
}
