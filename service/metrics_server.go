package service

import (
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsServer struct {
	httpServer
}

func NewMetricsServer(lgr log.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{httpServer{name: "metrics", log: lgr, handler: mux}}
}
