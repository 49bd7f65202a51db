// Promotor Sweeper — фоновые проходы по хранилищу.
//
// Sweeper снимает подавление с вариантов, отбывших cooldown, и
// возвращает в очередь задачи, застрявшие в processing. Проходы
// выполняет только лидер (pg_try_advisory_lock), поэтому экземпляров
// может быть несколько.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Promotor/internal/repo"
	"github.com/shaiso/Promotor/internal/sweeper"
	"github.com/shaiso/Promotor/internal/telemetry"
)

const sweepLockKey int64 = 727272

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting promotor-sweeper")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	variantRepo := repo.NewVariantRepo(pool)
	taskRepo := repo.NewTaskRepo(pool)

	sw := sweeper.New(sweeper.Config{
		Variants: variantRepo,
		Tasks:    taskRepo,
		Logger:   logger,
	})

	// Лидер запускает проходы; остальные экземпляры ждут блокировку.
	// LeaderLock держит соединение на всё время лидерства: advisory lock
	// живёт в сессии, unlock на другом соединении его бы не снял.
	lock := repo.NewLeaderLock(pool, sweepLockKey)
	go func() {
		tk := time.NewTicker(5 * time.Second)
		defer tk.Stop()

		var leading bool
		defer func() {
			if leading {
				sw.Stop()
			}
			lock.Release(context.Background())
		}()

		for {
			select {
			case <-tk.C:
				if leading {
					continue
				}

				ok, err := lock.TryAcquire(ctx)
				if err != nil {
					logger.Warn("leader lock attempt failed", "error", err)
					continue
				}
				if !ok {
					// не лидер — пропускаем тик
					continue
				}

				leading = true
				logger.Info("acquired sweep leadership")
				if err := sw.Start(ctx); err != nil {
					logger.Error("failed to start sweeper", "error", err)
					cancel()
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SWEEPER_PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{Addr: port, Handler: mux}

	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("promotor-sweeper stopped")
}
