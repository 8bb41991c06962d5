package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvAppURL   = "STOREFRONT_APP_URL"
	EnvLogLvl   = "STOREFRONT_LOG_LEVEL"
	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBPort   = "STOREFRONT_DB_PORT"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBPass   = "STOREFRONT_DB_PASSWORD"
	EnvDBName   = "STOREFRONT_DB_NAME"
	EnvDBSSL    = "STOREFRONT_DB_SSLMODE"
	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvStripeAPIKey = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeSecret = "STOREFRONT_STRIPE_SECRET"

	EnvOrderPendingTTL = "STOREFRONT_ORDER_PENDING_TTL"
	EnvNotificationSub = "STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
