package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"
	EnvLogFmt   = "STOREFRONT_LOG_FORMAT"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvBackendBaseURL  = "STOREFRONT_BACKEND_BASE_URL"
	EnvIdentityBaseURL = "STOREFRONT_IDENTITY_BASE_URL"
	EnvIdentityAPIKey  = "STOREFRONT_IDENTITY_API_KEY"

	EnvShippingFreeThreshold = "STOREFRONT_SHIPPING_FREE_THRESHOLD"
	EnvShippingFlatFee       = "STOREFRONT_SHIPPING_FLAT_FEE"
)
