package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/MikeMC777/autoparts-orders/internal/config"
	"github.com/MikeMC777/autoparts-orders/internal/events"
	"github.com/MikeMC777/autoparts-orders/internal/memstore"
	"github.com/MikeMC777/autoparts-orders/internal/order"
	"github.com/MikeMC777/autoparts-orders/internal/pgdb"
	"github.com/MikeMC777/autoparts-orders/internal/product"
	"github.com/MikeMC777/autoparts-orders/internal/seed"
	"github.com/MikeMC777/autoparts-orders/internal/session"
	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type stores struct {
	orders   order.Repository
	products product.Repository
	shops    shop.Repository
	users    user.Repository
	tx       order.Transactor
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		m := memstore.New()
		return &stores{
			orders:   m.Orders(),
			products: m.Products(),
			shops:    m.Shops(),
			users:    m.Users(),
			tx:       m,
			close:    func() {},
		}, nil
	case config.DriverPostgres:
		if cfg.MigrateOnStart {
			if err := pgdb.Migrate(cfg.PostgresDSN); err != nil {
				return nil, err
			}
			log.Info("[db] migrations applied")
		}
		pool, err := pgdb.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &stores{
			orders:   order.NewPGRepo(pool),
			products: product.NewPGRepo(pool),
			shops:    shop.NewPGRepo(pool),
			users:    user.NewPGRepo(pool),
			tx:       pgdb.NewTransactor(pool),
			close:    pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func openSessions(cfg config.Config) session.Store {
	if cfg.RedisAddr != "" {
		log.WithField("addr", cfg.RedisAddr).Info("[session] using redis")
		return session.NewRedisStore(cfg.RedisAddr, cfg.SessionTTL)
	}
	return session.NewMemoryStore(cfg.SessionTTL)
}

func openPublisher(cfg config.Config) events.Publisher {
	var pubs events.Multi
	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if cfg.EventsWebhook != "" {
		pubs = append(pubs, events.NewWebhookPublisher(cfg.EventsWebhook))
	}
	if len(pubs) == 0 {
		log.Info("[events] no publisher configured")
		return events.Noop{}
	}
	return pubs
}

func main() {
	cfg := config.Load()
	config.SetupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.close()

	if cfg.StoreDriver == config.DriverMemory || cfg.SeedDemo {
		if _, err := seed.Run(ctx, seed.Repos{Users: st.users, Shops: st.shops, Products: st.products}, cfg.DemoPassword); err != nil {
			log.WithError(err).Warn("[seed] skipped")
		}
	}

	sessions := openSessions(cfg)
	publisher := openPublisher(cfg)
	defer publisher.Close()

	svc := order.NewService(order.Deps{
		Orders:   st.orders,
		Products: st.products,
		Shops:    st.shops,
		Users:    st.users,
		Tx:       st.tx,
		Events:   publisher,
		Currency: cfg.DefaultCurrency,
	})

	router := newRouter(routerDeps{
		Orders:   svc,
		Auth:     user.NewService(st.users),
		Users:    st.users,
		Sessions: sessions,
	})

	// gRPC health for orchestrators
	lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		log.WithError(err).Fatal("failed to listen for grpc health")
	}
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("grpc health server stopped")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.OrderSvcAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.OrderSvcAddr).Info("order-service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	<-ctx.Done()
	log.Info("shutting down order-service")
	hs.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	grpcServer.GracefulStop()
	log.Info("order-service stopped")
}
