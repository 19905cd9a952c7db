package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	authcontrollers "github.com/angelmondragon/storefront/api/controllers/auth"
	cartcontrollers "github.com/angelmondragon/storefront/api/controllers/cart"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/auth"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/users"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/redis"
)

// redisStore is the slice of the Redis client the HTTP layer uses directly.
type redisStore interface {
	controllers.Pinger
	middleware.RateLimitStore
	redis.IdempotencyStore
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	DB       controllers.Pinger
	Redis    redisStore
	Sessions session.AccessSessionChecker
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics

	Auth     auth.Service
	Users    users.Service
	Catalog  catalog.Service
	Cart     cart.Service
	Checkout checkout.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		deps.HTTP.Middleware,
	)

	signInPolicy := middleware.NewAuthRateLimitPolicy(
		"sign-in",
		cfg.AuthRateLimit.SignInWindow,
		cfg.AuthRateLimit.SignInIPLimit,
		cfg.AuthRateLimit.SignInEmailLimit,
	)
	signUpPolicy := middleware.NewAuthRateLimitPolicy(
		"sign-up",
		cfg.AuthRateLimit.SignUpWindow,
		cfg.AuthRateLimit.SignUpIPLimit,
		cfg.AuthRateLimit.SignUpEmailLimit,
	)
	recoveryPolicy := middleware.NewAuthRateLimitPolicy(
		"recovery",
		cfg.AuthRateLimit.RecoveryWindow,
		cfg.AuthRateLimit.RecoveryIPLimit,
		cfg.AuthRateLimit.RecoveryEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Refresh accepts expired access tokens, so it sits outside the session resolver.
		r.Post("/auth/refresh", authcontrollers.Refresh(deps.Auth, cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.JWT, deps.Sessions, cfg.App.IsProd(), logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Route("/auth", func(r chi.Router) {
				r.With(middleware.AuthRateLimit(signInPolicy, deps.Redis, logg)).Post("/sign-in", authcontrollers.SignIn(deps.Auth, logg))
				r.With(middleware.AuthRateLimit(signUpPolicy, deps.Redis, logg)).Post("/sign-up", authcontrollers.SignUp(deps.Auth, logg))
				r.Post("/oauth/{provider}", authcontrollers.OAuthStart(deps.Auth, logg))
				r.Get("/oauth/callback", authcontrollers.OAuthCallback(deps.Auth, logg))
				r.With(middleware.AuthRateLimit(signInPolicy, deps.Redis, logg)).Post("/magic-link", authcontrollers.SendMagicLink(deps.Auth, logg))
				r.Post("/magic-link/verify", authcontrollers.VerifyMagicLink(deps.Auth, logg))
				r.With(middleware.AuthRateLimit(recoveryPolicy, deps.Redis, logg)).Post("/password/reset", authcontrollers.ResetPassword(deps.Auth, logg))
				r.With(middleware.RequireUser(logg)).Post("/sign-out", authcontrollers.SignOut(deps.Auth, logg))
			})

			r.Route("/catalog", func(r chi.Router) {
				r.Get("/categories", controllers.CatalogCategories(deps.Catalog, logg))
				r.Get("/categories/{slug}/products", controllers.CatalogCategoryProducts(deps.Catalog, logg))
				r.Get("/products/{productId}", controllers.CatalogProduct(deps.Catalog, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartView(deps.Cart, logg))
				r.Post("/refresh", cartcontrollers.CartRefresh(deps.Cart, logg))
				r.Get("/count", cartcontrollers.CartCount(deps.Cart, logg))
				r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
				r.Patch("/items/{itemId}", cartcontrollers.CartChangeQuantity(deps.Cart, logg))
				r.Post("/items/{itemId}/increment", cartcontrollers.CartIncrement(deps.Cart, logg))
				r.Post("/items/{itemId}/decrement", cartcontrollers.CartDecrement(deps.Cart, logg))
				r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/summary", controllers.CheckoutSummary(deps.Checkout, logg))
				r.Post("/", controllers.Checkout(deps.Checkout, logg))
			})

			r.Route("/account", func(r chi.Router) {
				r.Use(middleware.RequireUser(logg))
				r.Get("/profile", controllers.AccountProfile(deps.Users, logg))
				r.Put("/profile", controllers.AccountUpdateProfile(deps.Users, logg))
			})
		})
	})

	return r
}
