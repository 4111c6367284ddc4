package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/corvex/exchange-core/internal/auth"
	"github.com/corvex/exchange-core/internal/database"
	"github.com/corvex/exchange-core/internal/journal"
	"github.com/corvex/exchange-core/internal/ledger"
	"github.com/corvex/exchange-core/internal/markets"
	"github.com/corvex/exchange-core/internal/orderbook"
	"github.com/corvex/exchange-core/internal/settlement"
	"github.com/corvex/exchange-core/internal/timeseries"
	"github.com/corvex/exchange-core/pkg/middleware"
)

// init configures logging from the environment. Development gets pretty
// console output; DEBUG=true lowers the level.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "exchange.db"
	}
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		zlog.Fatal().Msg("JWT_SECRET must be set")
	}

	// Services
	authService := auth.NewService(jwtSecret)
	if key, secret := os.Getenv("API_KEY"), os.Getenv("API_SECRET"); key != "" && secret != "" {
		authService.RegisterAPICredentials(key, secret)
	}

	registry := markets.NewService(db)
	ledgerService := ledger.NewService(db)
	journalService := journal.NewService(db)

	band := decimal.NewFromFloat(0.10)
	if raw := os.Getenv("PRICE_BAND"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			zlog.Fatal().Str("price_band", raw).Msg("PRICE_BAND must be a decimal fraction")
		}
		band = parsed
	}
	// Last traded price anchors the band until an external oracle is wired
	// in front of it.
	discipline := markets.NewDiscipline(band, markets.ChainSource{journalService})

	engine := orderbook.NewEngine(db, ledgerService, journalService, registry, discipline)

	// Handlers
	authHandlers := auth.NewGinHandlers(authService)
	marketHandlers := markets.NewGinHandlers(registry)
	orderHandlers := orderbook.NewGinHandlers(engine)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	barHandlers := timeseries.NewGinHandlers(db)

	// Settlement hand-off runs in the background for the life of the process
	bridge := settlement.NewSimulatedBridge(0.01, time.Now().UnixNano())
	processor := settlement.NewProcessor(db, journalService, ledgerService, bridge)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()
	go processor.Start(processorCtx)

	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, []byte(jwtSecret), authHandlers, marketHandlers, orderHandlers, ledgerHandlers, barHandlers)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop accepting trades first, then let the settlement loop drain
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	processorCancel()

	zlog.Info().Msg("Server exiting")
}

// setupRoutes groups the API by concern:
//   - Auth routes: public credential exchange
//   - Order routes: placing and cancelling, JWT protected
//   - Market and book routes: reference data and depth, JWT protected
//   - Internal routes: registry administration, fenced off from clients
func setupRoutes(
	router *gin.Engine,
	jwtSecret []byte,
	authHandlers *auth.GinHandlers,
	marketHandlers *markets.GinHandlers,
	orderHandlers *orderbook.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	barHandlers *timeseries.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("", orderHandlers.PlaceOrderHandler())
			orders.GET("", orderHandlers.ListOrdersHandler())
			orders.GET("/:order_id", orderHandlers.GetOrderHandler())
			orders.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
		}

		marketGroup := v1.Group("/markets")
		marketGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			marketGroup.GET("", marketHandlers.ListMarketsHandler())
			marketGroup.GET("/assets", marketHandlers.ListAssetsHandler())
		}

		book := v1.Group("/book")
		book.Use(middleware.JWTAuth(jwtSecret))
		{
			book.GET("/:market_id", orderHandlers.BookHandler())
			book.GET("/:market_id/bars", barHandlers.BarsHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/assets", marketHandlers.CreateAssetHandler())
			internal.POST("/wallets", marketHandlers.CreateWalletHandler())
			internal.POST("/markets", marketHandlers.CreateMarketHandler())
			internal.GET("/balances/:wallet_id", ledgerHandlers.WalletBalancesHandler())
		}
	}
}
