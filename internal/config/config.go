package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  The types reflect how the values are used
// in the application: strings for identifiers and secrets, durations for
// leases and timeouts.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	HoldLease        time.Duration // how long a slot hold stays exclusive
	SweepInterval    time.Duration // how often expired holds are swept
	FacilityCacheTTL time.Duration // read-through cache TTL for facility configs

	MPBaseURL      string        // payment gateway REST base URL
	MPAuthURL      string        // payment gateway OAuth authorization base URL
	MPClientID     string        // OAuth application id
	MPClientSecret string        // OAuth application secret
	MPRedirectURI  string        // OAuth callback URL registered with the gateway
	GatewayTimeout time.Duration // per-request timeout for gateway calls

	PublicBaseURL  string // customer-facing base URL for payment return pages
	BackendBaseURL string // externally reachable base URL for webhooks

	StateSecret      string        // signs the OAuth connect state token
	CredentialKeyHex string        // AES key for credentials at rest, hex encoded
	SessionIndexTTL  time.Duration // retention for payment session index entries
	AdminToken       string        // bearer token guarding operator endpoints (optional)

	WhatsAppToken   string // Meta Cloud API token (optional, disables WhatsApp when empty)
	WhatsAppPhoneID string // Meta Cloud API phone number id
	AdminWhatsAppTo string // fallback WhatsApp recipient for confirmations
	ResendAPIKey    string // Resend API key (optional, disables email when empty)
	ResendFrom      string // sender address for confirmation emails
	AdminEmail      string // fallback email recipient for confirmations
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Operational knobs
// carry defaults so a minimal .env is enough for local development.
func Load() Config {
	return Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		HoldLease:        envDur("HOLD_LEASE", 10*time.Minute),
		SweepInterval:    envDur("HOLD_SWEEP_INTERVAL", time.Minute),
		FacilityCacheTTL: envDur("FACILITY_CACHE_TTL", 5*time.Minute),

		MPBaseURL:      envStr("MP_BASE_URL", "https://api.mercadopago.com"),
		MPAuthURL:      envStr("MP_AUTH_URL", "https://auth.mercadopago.com"),
		MPClientID:     must("MP_CLIENT_ID"),
		MPClientSecret: must("MP_CLIENT_SECRET"),
		MPRedirectURI:  must("MP_REDIRECT_URI"),
		GatewayTimeout: envDur("MP_TIMEOUT", 10*time.Second),

		PublicBaseURL:  must("PUBLIC_BASE_URL"),
		BackendBaseURL: must("BACKEND_BASE_URL"),

		StateSecret:      must("OAUTH_STATE_SECRET"),
		CredentialKeyHex: must("CREDENTIAL_KEY_HEX"),
		SessionIndexTTL:  envDur("SESSION_INDEX_TTL", 48*time.Hour),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),

		WhatsAppToken:   os.Getenv("WHATSAPP_TOKEN"),
		WhatsAppPhoneID: os.Getenv("WHATSAPP_PHONE_ID"),
		AdminWhatsAppTo: os.Getenv("ADMIN_WHATSAPP_TO"),
		ResendAPIKey:    os.Getenv("RESEND_API_KEY"),
		ResendFrom:      os.Getenv("RESEND_FROM"),
		AdminEmail:      os.Getenv("ADMIN_EMAIL"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
