package config

const (
	EnvPrefix = "SHOPFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "SHOPFLOW_APP_ENV"
	EnvPort      = "SHOPFLOW_APP_PORT"
	EnvLogLevel  = "SHOPFLOW_LOG_LEVEL"
	EnvDBDSN     = "SHOPFLOW_DB_DSN"
	EnvDBHost    = "SHOPFLOW_DB_HOST"
	EnvDBUser    = "SHOPFLOW_DB_USER"
	EnvDBName    = "SHOPFLOW_DB_NAME"
	EnvRedisURL  = "SHOPFLOW_REDIS_URL"
	EnvJWTSecret = "SHOPFLOW_JWT_SECRET"
	EnvJWTIssuer = "SHOPFLOW_JWT_ISSUER"

	EnvPricingTiers   = "SHOPFLOW_PRICING_TIERS"
	EnvPricingOverage = "SHOPFLOW_PRICING_OVERAGE_PER_KM"
	EnvPricingDefault = "SHOPFLOW_PRICING_DEFAULT_FEE"
	EnvCartTaxRate    = "SHOPFLOW_CART_TAX_RATE"

	EnvMoMoPartnerCode = "SHOPFLOW_MOMO_PARTNER_CODE"
	EnvMoMoAccessKey   = "SHOPFLOW_MOMO_ACCESS_KEY"
	EnvMoMoSecretKey   = "SHOPFLOW_MOMO_SECRET_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
