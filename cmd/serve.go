package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	model "rental-auction/internal/models"
	"rental-auction/internal/repository"
	"rental-auction/internal/server"
	"rental-auction/internal/trust"
	"rental-auction/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var seedDemo bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the auction expiry sweeper",
	RunE:  serve,
}

func init() {
	serveCmd.Flags().BoolVar(&seedDemo, "seed", false, "prepopulate the memory store with demo cars and users")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo := repository.NewMemoryRepo()
	if seedDemo {
		prepopulate(repo)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := server.NewApp(*cfg, repo, utils.SystemClock{}, reg)
	if err != nil {
		return err
	}

	go app.Sweeper.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           app.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Info("Starting rental auction server", map[string]any{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	utils.Info("Shutting down rental auction server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// prepopulate adds sample cars and users to the in-memory repo
func prepopulate(repo *repository.MemoryRepo) {
	cars := []model.Car{
		{CarID: "car1", Model: "Toyota Corolla", NumberPlate: "KA-01-1234", DailyPrice: 1500, IsActive: true},
		{CarID: "car2", Model: "Honda City", NumberPlate: "KA-02-5678", DailyPrice: 1800, IsActive: true},
		{CarID: "car3", Model: "Maruti Swift", NumberPlate: "KA-03-9012", DailyPrice: 1200, IsActive: false},
	}
	for _, car := range cars {
		repo.AddCar(car)
	}

	users := []model.User{
		{UserID: "admin", Username: "admin", IsAdmin: true, AvgRating: 5, TotalRides: 10},
		{UserID: "user1", Username: "steady", AvgRating: 4.5, TotalRides: 20, RashCount: 1},
		{UserID: "user2", Username: "frequent", AvgRating: 3.5, TotalRides: 60, DamageCount: 1},
		{UserID: "user3", Username: "newcomer", AvgRating: 2, TotalRides: 1},
	}
	for _, u := range users {
		u.TrustScore = trust.Score(u.AvgRating, u.TotalRides, u.DamageCount, u.RashCount)
		repo.AddUser(u)
	}
}
