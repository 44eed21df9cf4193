package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/api"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/config"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/constants"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/data"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/inference"
)

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Path for exported model directory")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Inference backend: savedmodel, tflite, onnx")
	flag.StringVar(&cfg.ONNXRuntimeLib, "onnxruntime", cfg.ONNXRuntimeLib, "Path for onnxruntime shared library")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "MySQL DSN for image and prediction records (optional)")
	flag.StringVar(&cfg.ImagesPath, "images", cfg.ImagesPath, "Path for uploaded training images")
	flag.StringVar(&cfg.StaticPath, "static", cfg.StaticPath, "Path for built frontend served under /app (optional)")
	flag.Parse()

	config.InitLogger(cfg.LogLevel)

	i, err := inference.New(inference.Config{
		ModelPath:      cfg.ModelPath,
		Backend:        cfg.Backend,
		ONNXRuntimeLib: cfg.ONNXRuntimeLib,
	})
	if err != nil {
		slog.Error("Model load failed", "model", cfg.ModelPath, "error", err)
		os.Exit(1)
	}
	cleanups := []func(){i.Destroy}

	var m *data.Manager
	if cfg.DSN != "" {
		if m, err = data.New(data.Config{
			ConnInfo:   cfg.DSN,
			ImagesPath: cfg.ImagesPath,
		}); err != nil {
			slog.Error("DB init failed", "error", err)
			i.Destroy()
			os.Exit(1)
		}
		cleanups = append(cleanups, m.Destroy)
	}

	r := gin.Default()
	r.MaxMultipartMemory = constants.MaxMultipartMemory
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	r.Use(api.Metrics())
	if cfg.StaticPath != "" {
		r.Use(static.Serve("/app", static.LocalFile(cfg.StaticPath, true)))
	}

	a := api.APIs{
		I: i,
		M: m,
	}
	a.Routes(r)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	slog.Info("Starting leaf disease detection server", "addr", server.Addr, "backend", cfg.Backend)
	serve(server, constants.ShutdownTimeout, cleanups...)
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	for _, origin := range origins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins

	return c
}

// serve SIGINT/SIGTERM 을 받으면 timeout 안에 server 를 종료하고 cleanups 를 역순으로 실행
func serve(server *http.Server, timeout time.Duration, cleanups ...func()) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down server", "timeout", timeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}

	for n := len(cleanups) - 1; n >= 0; n-- {
		cleanups[n]()
	}
}
