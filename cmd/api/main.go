package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/partner-storefront/api/internal/di"
	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/handlers"
	"github.com/partner-storefront/api/internal/partnercenter"
	"github.com/partner-storefront/api/internal/platform/auth"
	"github.com/partner-storefront/api/internal/platform/blob"
	"github.com/partner-storefront/api/internal/platform/config"
	"github.com/partner-storefront/api/internal/platform/events"
	pfirestore "github.com/partner-storefront/api/internal/platform/firestore"
	"github.com/partner-storefront/api/internal/platform/observability"
	"github.com/partner-storefront/api/internal/platform/secrets"
	"github.com/partner-storefront/api/internal/repositories"
	blobrepo "github.com/partner-storefront/api/internal/repositories/blob"
	firestorerepo "github.com/partner-storefront/api/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	var loadOpts []config.Option
	if projectID := strings.TrimSpace(envValues["STORE_SECRETS_PROJECT_ID"]); projectID != "" {
		fetcher, err := secrets.NewFetcher(ctx, projectID, secrets.WithLogger(logger.Named("secrets")))
		if err != nil {
			logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
		}
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
		loadOpts = append(loadOpts, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	}

	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	offerStore, err := blob.NewStore(storageClient, cfg.Blob.Bucket)
	if err != nil {
		logger.Fatal("failed to initialise offer store", zap.Error(err))
	}
	offerRepo, err := blobrepo.NewPartnerOfferRepository(offerStore,
		blobrepo.WithCatalogObject(cfg.Blob.OffersObject),
		blobrepo.WithCacheTTL(cfg.Portal.OfferCacheTTL),
	)
	if err != nil {
		logger.Fatal("failed to initialise offer repository", zap.Error(err))
	}

	platformClient, err := partnercenter.NewClient(cfg.PartnerCenter)
	if err != nil {
		logger.Fatal("failed to initialise partner platform client", zap.Error(err))
	}

	healthRepo, err := repositories.NewProbeHealthRepository(dependencyProbes(firestoreProvider, offerStore, platformClient, cfg))
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	registry, err := firestorerepo.NewRegistry(firestorerepo.RegistryDeps{
		Provider: firestoreProvider,
		Offers:   offerRepo,
		Health:   healthRepo,
	})
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("registry close error", zap.Error(err))
		}
	}()

	publisher, closePublisher, err := newEventPublisher(ctx, cfg.Events, logger)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closePublisher()

	seedPaymentConfig(ctx, logger, cfg, registry.PaymentConfig())

	container, err := di.NewContainer(ctx, cfg, di.ContainerDeps{
		Registry:  registry,
		Platform:  platformClient,
		Publisher: publisher,
		Logger:    observability.EventLogger(logger),
	})
	if err != nil {
		logger.Fatal("failed to build dependency container", zap.Error(err))
	}

	jwks := auth.NewJWKSCache(cfg.Auth.JWKSURL)
	verifier := auth.NewVerifier(jwks, cfg.Auth.Issuer, cfg.Auth.Audience)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(container.Services.System)),
		handlers.WithOfferRoutes(handlers.NewOfferHandlers(container.Services.Catalog).Routes),
		handlers.WithCustomerRoutes(handlers.NewCustomerHandlers(verifier, container.Services.Customers).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(verifier, container.Services.Checkout, container.Services.Summary).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("storefront api listening", zap.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logger.Warn("server shutdown error", zap.Error(err))
		}
	}
}

// dependencyProbes wires the readiness checks for every external dependency.
func dependencyProbes(provider *pfirestore.Provider, offerStore *blob.Store, platform *partnercenter.Client, cfg config.Config) []repositories.DependencyProbe {
	return []repositories.DependencyProbe{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
		{
			Name: "offer-store",
			Check: func(ctx context.Context) error {
				_, err := offerStore.Exists(ctx, cfg.Blob.OffersObject)
				return err
			},
		},
		{
			Name:    "partner-platform",
			Timeout: 3 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := platform.ListOffers(ctx)
				return err
			},
		},
	}
}

func newEventPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, func(), error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		logger.Info("commerce events disabled, no topic configured")
		return events.NopPublisher{}, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	topic := client.Topic(cfg.Topic)
	publisher, err := events.NewPubSubPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closeFn := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, closeFn, nil
}

// seedPaymentConfig writes the env-supplied provider credentials into the
// payment config store when it is still empty, so a fresh deployment can
// sell without a manual configuration step. Only a confirmed missing
// document triggers the seed; a store outage must not clobber a
// configuration an operator may have edited.
func seedPaymentConfig(ctx context.Context, logger *zap.Logger, cfg config.Config, repo repositories.PaymentConfigRepository) {
	_, err := repo.Get(ctx)
	if err == nil {
		return
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		logger.Warn("payment configuration unreadable; skipping seed", zap.Error(err))
		return
	}

	var seed domain.PaymentConfiguration
	switch {
	case strings.TrimSpace(cfg.PayPal.ClientID) != "":
		seed = domain.PaymentConfiguration{
			Provider:     "paypal",
			BaseURL:      cfg.PayPal.BaseURL,
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
		}
	case strings.TrimSpace(cfg.PayUMoney.ClientID) != "":
		seed = domain.PaymentConfiguration{
			Provider:           "payumoney",
			BaseURL:            cfg.PayUMoney.BaseURL,
			ClientID:           cfg.PayUMoney.ClientID,
			MerchantAuthHeader: cfg.PayUMoney.AuthHeader,
		}
	case strings.TrimSpace(cfg.Stripe.APIKey) != "":
		seed = domain.PaymentConfiguration{Provider: "stripe"}
	default:
		logger.Warn("no payment provider configured; checkout will reject orders")
		return
	}
	seed.UpdatedAt = time.Now().UTC()
	if err := repo.Save(ctx, seed); err != nil {
		logger.Warn("failed to seed payment configuration", zap.Error(err))
		return
	}
	logger.Info("seeded payment configuration", zap.String("provider", seed.Provider))
}
