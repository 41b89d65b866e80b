// sensorwatch serves real-time anomaly predictions for station telemetry.
// It validates incoming sensor events, scores them against the loaded
// isolation forest artifact, appends every successful prediction to the
// prediction store, and answers recent-anomaly queries.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensorwatch/internal/config"
	"sensorwatch/internal/logging"
	"sensorwatch/internal/ml"
	otelobs "sensorwatch/internal/observability/otel"
	"sensorwatch/internal/server"
	"sensorwatch/internal/store"
)

const serviceName = "sensorwatch"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Fatalf("config: %v", err)
	}

	shutdownTracer := otelobs.InitTracer(serviceName)
	defer shutdownTracer(context.Background())

	engine := ml.NewEngine()
	if err := engine.LoadFrom(cfg.ModelDir); err != nil {
		// A missing artifact is a deploy-ordering problem: serve degraded
		// and let /reload pick it up once the trainer has run. Anything
		// else (corrupt files, feature mismatch) is fatal.
		if os.IsNotExist(err) {
			logging.Errorf("no scoring artifact in %s, serving degraded until reload: %v", cfg.ModelDir, err)
		} else {
			logging.Fatalf("load scoring artifact: %v", err)
		}
	} else {
		logging.Infof("scoring artifact loaded, version %s", engine.Version())
	}

	st, err := openStore(cfg)
	if err != nil {
		logging.Fatalf("open prediction store: %v", err)
	}
	defer st.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelobs.WrapHTTPHandler(serviceName, server.New(engine, st, cfg.ModelDir).Routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("%s listening on :%s (store=%s)", serviceName, cfg.Port, cfg.StoreBackend)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logging.Fatalf("http server: %v", err)
	case sig := <-stop:
		logging.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Errorf("shutdown: %v", err)
	}
	logging.Infof("%s stopped", serviceName)
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		return store.NewPostgres(cfg.DatabaseURL)
	default:
		return store.OpenLogFile(cfg.LogPath)
	}
}
