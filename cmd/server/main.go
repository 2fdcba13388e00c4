//go:build grpcserver

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"orderFulfillmentTracking/internal/config"
	"orderFulfillmentTracking/internal/db"
	"orderFulfillmentTracking/internal/geocode"
	grpcserver "orderFulfillmentTracking/internal/grpc"
	"orderFulfillmentTracking/internal/lifecycle"
	"orderFulfillmentTracking/internal/notify"
	"orderFulfillmentTracking/internal/route"
	"orderFulfillmentTracking/internal/tracker"
	"orderFulfillmentTracking/repository"
)

const notificationSweepInterval = time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Info("configuration loaded", "config", cfg.String())

	orders, notes, closeStore, err := openStores(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	machine := lifecycle.NewMachine(orders, logger)

	var sender notify.Sender
	if cfg.Broker.AMQPURL != "" {
		amqpSender, err := notify.NewAMQPSender(cfg.Broker.AMQPURL)
		if err != nil {
			log.Fatalf("connect broker: %v", err)
		}
		defer amqpSender.Close()
		sender = amqpSender
	}
	dispatcher := notify.NewDispatcher(orders, notes, sender, logger)
	machine.OnTransition(dispatcher.Listener())
	defer dispatcher.Wait()

	coord := tracker.NewCoordinator(orders, tracker.Config{
		PushGrace:    cfg.Tracking.PushGrace,
		PollInterval: cfg.Tracking.PollInterval,
	}, logger)
	planner := route.NewPlanner(route.NewOSRMService(cfg.Routing.OSRMBaseURL, nil), cfg.Routing.Timeout, cfg.Routing.ReplanM)
	geocoder := geocode.NewNominatimGeocoder(cfg.Geocode.NominatimBaseURL, cfg.Geocode.UserAgent, cfg.Geocode.Timeout, nil)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepNotifications(sweepCtx, notes, logger)

	srv := &grpcserver.FulfillmentServer{
		Orders:   orders,
		Notes:    notes,
		Machine:  machine,
		Tracker:  coord,
		Planner:  planner,
		Geocoder: geocoder,
		Tracking: cfg.Tracking,
		Log:      logger,
	}
	shutdown, err := grpcserver.StartGRPC(cfg, srv)
	if err != nil {
		log.Fatalf("start grpc: %v", err)
	}
	logger.Info("gRPC server listening", "address", cfg.GRPC.Address)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

// openStores builds the configured backend, sqlite by default or MongoDB
// when DB_BACKEND=mongo.
func openStores(cfg *config.Config) (repository.OrderStoreI, repository.NotificationStoreI, func(), error) {
	if cfg.Database.Backend == "mongo" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Database.MongoURI))
		if err != nil {
			return nil, nil, nil, err
		}
		mdb := client.Database(cfg.Database.MongoDB)
		closer := func() {
			cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer ccancel()
			_ = client.Disconnect(cctx)
		}
		return repository.NewMongoOrderStore(mdb), repository.NewMongoNotificationStore(mdb), closer, nil
	}

	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	closer := func() {
		if cerr := d.Close(); cerr != nil {
			slog.Error("close db", "err", cerr)
		}
	}
	return repository.NewOrderRepository(d), repository.NewNotificationRepository(d), closer, nil
}

// sweepNotifications removes expired notifications on a fixed cadence.
func sweepNotifications(ctx context.Context, notes repository.NotificationStoreI, logger *slog.Logger) {
	ticker := time.NewTicker(notificationSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := notes.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("notification sweep failed", "err", err)
				continue
			}
			if removed > 0 {
				logger.Info("expired notifications removed", "count", removed)
			}
		}
	}
}
