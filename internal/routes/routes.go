package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kori-finance/kori/internal/account"
	"github.com/kori-finance/kori/internal/actor"
	"github.com/kori-finance/kori/internal/audit"
	"github.com/kori-finance/kori/internal/card"
	"github.com/kori-finance/kori/internal/cascade"
	"github.com/kori-finance/kori/internal/clock"
	"github.com/kori-finance/kori/internal/config"
	"github.com/kori-finance/kori/internal/event"
	"github.com/kori-finance/kori/internal/guard"
	"github.com/kori-finance/kori/internal/idempotency"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/lifecycle"
	"github.com/kori-finance/kori/internal/middleware"
	"github.com/kori-finance/kori/internal/money"
	"github.com/kori-finance/kori/internal/payments"
	"github.com/kori-finance/kori/internal/payout"
	"github.com/kori-finance/kori/internal/pricing"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Outside dev every adapter must be real; in dev the in-memory
	// fallbacks make the service runnable on a laptop.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Storage adapters.
	memJournal := ledger.NewInMemoryJournal()
	var (
		journal interface {
			ledger.AppendPort
			ledger.QueryPort
		}
		locks    ledger.LockPort
		store    idempotency.Store
		profiles account.Port
		cards    card.Repository

		agents    actor.AgentRepository
		merchants actor.MerchantRepository
		clients   actor.ClientRepository
		admins    actor.AdminRepository
		terminals actor.TerminalRepository

		payouts payout.Repository
		refunds payout.RefundRepository

		fees       pricing.FeePolicy
		commission pricing.CommissionPolicy
		platform   pricing.PlatformConfig
	)

	if d.DB != nil {
		journal = ledger.NewPostgresJournal(d.DB)
		store = idempotency.NewPostgresStore(d.DB)
		profiles = account.NewPostgresPort(d.DB)
		cards = card.NewPostgresRepository(d.DB)
		agents = actor.NewPostgresAgents(d.DB)
		merchants = actor.NewPostgresMerchants(d.DB)
		clients = actor.NewPostgresClients(d.DB)
		admins = actor.NewPostgresAdmins(d.DB)
		terminals = actor.NewPostgresTerminals(d.DB)
		payouts = payout.NewPostgresRepository(d.DB)
		refunds = payout.NewPostgresRefundRepository(d.DB)
		pg := pricing.NewPostgres(d.DB)
		fees, commission, platform = pg, pg, pg
	} else {
		journal = memJournal
		store = idempotency.NewMemoryStore()
		profiles = account.NewMemoryPort()
		cards = card.NewMemoryRepository()
		agents = actor.NewMemoryAgents()
		merchants = actor.NewMemoryMerchants()
		clients = actor.NewMemoryClients()
		admins = actor.NewMemoryAdmins()
		terminals = actor.NewMemoryTerminals()
		payouts = payout.NewMemoryRepository()
		refunds = payout.NewMemoryRefundRepository()
		static := devPricing()
		fees, commission, platform = static, static, static
	}

	if d.Cache != nil {
		locks = ledger.NewRedisLock(d.Cache, d.Cfg.LockLease, d.Cfg.LockRetry)
		// The Postgres store stays the default when a database is wired:
		// it commits command results in the same boundary as the ledger
		// rows. Redis takes over only when IDEMPOTENCY_STORE selects it,
		// or when there is no database to hold the results.
		if d.DB == nil || d.Cfg.IdempotencyStore == config.IdempotencyStoreRedis {
			store = idempotency.NewRedisStore(d.Cache, d.Cfg.IdempotencyTTL)
		}
	} else {
		locks = memJournal
	}

	// Services.
	executor := idempotency.NewExecutor(store, d.Logger)
	events := event.NewLoggerPublisher(d.Logger)
	trail := audit.NewLogTrail(d.Logger)
	clk := clock.System{}
	pins := card.BcryptHasher{}

	paymentSvc := payments.NewService(payments.ServiceDeps{
		Agents:     agents,
		Merchants:  merchants,
		Clients:    clients,
		Admins:     admins,
		Terminals:  terminals,
		Cards:      cards,
		Pins:       pins,
		Profiles:   profiles,
		Journal:    journal,
		Locks:      locks,
		Executor:   executor,
		Fees:       fees,
		Commission: commission,
		Config:     platform,
		Events:     events,
		Audit:      trail,
		Clock:      clk,
		Logger:     d.Logger,
	})
	cardSvc := card.NewService(card.ServiceDeps{
		Agents:     agents,
		Clients:    clients,
		Admins:     admins,
		Cards:      cards,
		Pins:       pins,
		Profiles:   profiles,
		Journal:    journal,
		Locks:      locks,
		Executor:   executor,
		Commission: commission,
		Config:     platform,
		Events:     events,
		Audit:      trail,
		Clock:      clk,
		Logger:     d.Logger,
	})
	payoutSvc := payout.NewService(payout.ServiceDeps{
		Agents:   agents,
		Clients:  clients,
		Admins:   admins,
		Profiles: profiles,
		Journal:  journal,
		Locks:    locks,
		Executor: executor,
		Config:   platform,
		Payouts:  payouts,
		Refunds:  refunds,
		Events:   events,
		Audit:    trail,
		Clock:    clk,
		Logger:   d.Logger,
	})
	dispatcher := event.NewDispatcher(
		cascade.NewAgentHandler(profiles),
		cascade.NewClientHandler(profiles, cards),
		cascade.NewMerchantHandler(profiles, terminals),
	)
	lifecycleSvc := lifecycle.NewService(lifecycle.ServiceDeps{
		Agents:     agents,
		Merchants:  merchants,
		Clients:    clients,
		Admins:     admins,
		Terminals:  terminals,
		Dispatcher: dispatcher,
		Events:     events,
		Audit:      trail,
		Clock:      clk,
		Logger:     d.Logger,
	})

	// Every business route carries a gateway-verified identity.
	api := app.Group("/api/v1", middleware.Caller())

	RegisterPaymentRoutes(api, payments.NewHandler(paymentSvc))
	RegisterCardRoutes(api, card.NewHandler(cardSvc))
	RegisterPayoutRoutes(api, payout.NewHandler(payoutSvc))

	admin := api.Group("/admin", middleware.RequireActor(guard.ActorAdmin))
	RegisterLifecycleRoutes(admin, lifecycle.NewHandler(lifecycleSvc))
	RegisterLedgerRoutes(admin, ledger.NewHandler(journal))

	return nil
}

// devPricing is the schedule used when no database is wired: a flat
// 1.00 fee split evenly with the acquiring party.
func devPricing() *pricing.Static {
	rate := pricing.Rate{
		Flat:            money.FromMinorUnits(100),
		Percent:         decimal.Zero,
		CommissionShare: decimal.RequireFromString("0.5"),
	}
	bounds := guard.AmountBounds{
		Min: money.FromMinorUnits(100),
		Max: money.FromMinorUnits(100_000_000),
	}
	rates := make(map[ledger.TransactionType]pricing.Rate)
	allBounds := make(map[ledger.TransactionType]guard.AmountBounds)
	for _, txType := range []ledger.TransactionType{
		ledger.TxEnrollCard,
		ledger.TxPayByCard,
		ledger.TxMerchantWithdraw,
		ledger.TxAgentPayout,
		ledger.TxCashInByAgent,
		ledger.TxClientRefund,
	} {
		rates[txType] = rate
		allBounds[txType] = bounds
	}
	return &pricing.Static{
		Rates:         rates,
		Bounds:        allBounds,
		CashLimit:     money.FromMinorUnits(10_000_000),
		PinAttempts:   3,
		EnrollmentFee: money.FromMinorUnits(500),
	}
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
