package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealsync/internal/webhook"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		maxBody := int64(cfg.Server.MaxBodyMB) << 20

		r := chi.NewRouter()
		r.Use(requestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(cors.AllowAll().Handler)

		creds := map[string]bool{
			"qb_realm":        cfg.QuickBase.Realm != "",
			"qb_table_id":     cfg.QuickBase.TableID != "",
			"qb_user_token":   cfg.QuickBase.UserToken != "",
			"enerflo_api_key": cfg.Enerflo.APIKey != "",
		}
		r.Get("/health", webhook.HealthHandler(env.Processor.Stats(), creds))
		r.Post("/webhook/enerflo", webhook.Handler(env.Processor, maxBody))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// requestID tags each delivery so its log lines can be correlated with
// the producer's redelivery history.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
