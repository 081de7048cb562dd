package config

const (
	EnvPrefix = "GROCERYBID"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "GROCERYBID_APP_ENV"
	EnvPort        = "GROCERYBID_APP_PORT"
	EnvDBDSN       = "GROCERYBID_DB_DSN"
	EnvDBHost      = "GROCERYBID_DB_HOST"
	EnvDBUser      = "GROCERYBID_DB_USER"
	EnvDBName      = "GROCERYBID_DB_NAME"
	EnvRedisURL    = "GROCERYBID_REDIS_URL"
	EnvJWTSecret   = "GROCERYBID_JWT_SECRET"
	EnvJWTIssuer   = "GROCERYBID_JWT_ISSUER"
	EnvJWTExpMins  = "GROCERYBID_JWT_EXPIRATION_MINUTES"
	EnvGCPProject  = "GROCERYBID_GCP_PROJECT_ID"
	EnvDomainTopic = "GROCERYBID_PUBSUB_DOMAIN_TOPIC"

	EnvBiddingCharge   = "GROCERYBID_BIDDING_CHARGE"
	EnvRoyaltyPercent  = "GROCERYBID_ROYALTY_PERCENT"
	EnvReferralPercent = "GROCERYBID_REFERRAL_PERCENT"
	EnvNewUserBonus    = "GROCERYBID_NEW_USER_BONUS"
	EnvReferrerBonus   = "GROCERYBID_REFERRER_BONUS"

	EnvStrictDelivery = "GROCERYBID_FEATURE_STRICT_DELIVERY_TRANSITIONS"
)

// legacyDBEnvVars must all be present when no DSN is configured.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
