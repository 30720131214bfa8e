package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// minimalEnv satisfies validation with the fewest possible keys.
func minimalEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":  "forevish-dev",
		"API_STORAGE_MEDIA_BUCKET": "forevish-media-dev",
	}
}

func loadWith(t *testing.T, env map[string]string, extra ...Option) Config {
	t.Helper()
	opts := append([]Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}, extra...)
	cfg, err := Load(context.Background(), opts...)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return cfg
}

func mapResolver(secrets map[string]string) SecretResolver {
	return SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret " + ref)
	})
}

func TestLoadWithDefaults(t *testing.T) {
	cfg := loadWith(t, minimalEnv())

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %s, got %s", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "forevish-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "forevish-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != defaultOrderEventsTopic {
		t.Errorf("unexpected default order events topic: %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Storage.MaxUploadSize != defaultMaxUploadBytes {
		t.Errorf("unexpected default max upload size: %d", cfg.Storage.MaxUploadSize)
	}
	if cfg.Storage.UploadURLExpiry != defaultUploadURLExpiry {
		t.Errorf("unexpected default upload url expiry: %s", cfg.Storage.UploadURLExpiry)
	}
	if cfg.Webhooks.CarrierSecretName != defaultCarrierSecretName {
		t.Errorf("unexpected default carrier secret name: %s", cfg.Webhooks.CarrierSecretName)
	}
	if cfg.RateLimits.DefaultPerMinute != defaultRateLimitDefault {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if !cfg.Features.EnableNotifications || !cfg.Features.EnableWishlist {
		t.Errorf("expected notification and wishlist flags on by default, got %+v", cfg.Features)
	}
	if cfg.Security.Environment != defaultSecurityEnvironment {
		t.Errorf("expected default security environment, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("unexpected default jwks url %s", cfg.Security.OIDC.JWKSURL)
	}
	wantIssuers := []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	if len(cfg.Security.OIDC.Issuers) != len(wantIssuers) {
		t.Fatalf("expected default issuers %v, got %v", wantIssuers, cfg.Security.OIDC.Issuers)
	}
	for i, issuer := range wantIssuers {
		if cfg.Security.OIDC.Issuers[i] != issuer {
			t.Errorf("issuer %d: expected %s, got %s", i, issuer, cfg.Security.OIDC.Issuers[i])
		}
	}
	if cfg.Security.HMAC.SignatureHeader != defaultHMACSignatureHeader {
		t.Errorf("unexpected default signature header %s", cfg.Security.HMAC.SignatureHeader)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("unexpected default idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_READ_TIMEOUT":            "20s",
		"API_SERVER_WRITE_TIMEOUT":           "25s",
		"API_SERVER_IDLE_TIMEOUT":            "2m",
		"API_FIREBASE_PROJECT_ID":            "forevish-prod",
		"API_FIRESTORE_PROJECT_ID":           "forevish-fire",
		"API_PUBSUB_PROJECT_ID":              "forevish-events",
		"API_PUBSUB_ORDER_EVENTS_TOPIC":      "order-events-prod",
		"API_STORAGE_MEDIA_BUCKET":           "media-prod",
		"API_STORAGE_MAX_UPLOAD_BYTES":       "5242880",
		"API_STORAGE_UPLOAD_URL_EXPIRY":      "5m",
		"API_PSP_STRIPE_API_KEY":             "secret://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET":      "secret://stripe/webhook",
		"API_WEBHOOK_CARRIER_SECRET_NAME":    "carrier-prod",
		"API_WEBHOOK_ALLOWED_HOSTS":          "https://example.com, https://foo.bar",
		"API_RATELIMIT_DEFAULT_PER_MIN":      "150",
		"API_RATELIMIT_AUTH_PER_MIN":         "300",
		"API_RATELIMIT_WEBHOOK_BURST":        "80",
		"API_FEATURE_NOTIFICATIONS":          "false",
		"API_FEATURE_WISHLIST":               "true",
		"API_SECURITY_ENVIRONMENT":           "prod",
		"API_SECURITY_OIDC_AUDIENCE":         "https://service.example.com",
		"API_SECURITY_OIDC_ISSUERS":          "https://accounts.google.com, https://cloud.google.com/iap",
		"API_SECURITY_OIDC_JWKS_URL":         "https://example.com/jwks.json",
		"API_SECURITY_HMAC_SECRETS":          "carrier=secret://hmac/carrier,internal=internal-secret",
		"API_SECURITY_HMAC_HEADER_SIGNATURE": "X-Custom-Signature",
		"API_SECURITY_HMAC_CLOCK_SKEW":       "3m",
		"API_SECURITY_HMAC_NONCE_TTL":        "10m",
		"API_IDEMPOTENCY_HEADER":             "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL":   "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":      "500",
	}

	resolver := mapResolver(map[string]string{
		"secret://stripe/api":     "stripe-key",
		"secret://stripe/webhook": "stripe-webhook",
		"secret://hmac/carrier":   "carrier-hmac",
	})

	cfg := loadWith(t, env, WithSecretResolver(resolver))

	strings := []struct {
		name, got, want string
	}{
		{"server port", cfg.Server.Port, "9090"},
		{"pubsub project", cfg.PubSub.ProjectID, "forevish-events"},
		{"order events topic", cfg.PubSub.OrderEventsTopic, "order-events-prod"},
		{"media bucket", cfg.Storage.MediaBucket, "media-prod"},
		{"stripe api key", cfg.PSP.StripeAPIKey, "stripe-key"},
		{"stripe webhook secret", cfg.PSP.StripeWebhookSecret, "stripe-webhook"},
		{"carrier secret name", cfg.Webhooks.CarrierSecretName, "carrier-prod"},
		{"security environment", cfg.Security.Environment, "prod"},
		{"oidc audience", cfg.Security.OIDC.Audience, "https://service.example.com"},
		{"carrier hmac secret", cfg.Security.HMAC.Secrets["carrier"], "carrier-hmac"},
		{"internal hmac secret", cfg.Security.HMAC.Secrets["internal"], "internal-secret"},
		{"signature header", cfg.Security.HMAC.SignatureHeader, "X-Custom-Signature"},
		{"idempotency header", cfg.Idempotency.Header, "X-Idem-Key"},
	}
	for _, check := range strings {
		if check.got != check.want {
			t.Errorf("%s: expected %q, got %q", check.name, check.want, check.got)
		}
	}

	durations := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"idle timeout", cfg.Server.IdleTimeout, 2 * time.Minute},
		{"upload url expiry", cfg.Storage.UploadURLExpiry, 5 * time.Minute},
		{"hmac clock skew", cfg.Security.HMAC.ClockSkew, 3 * time.Minute},
		{"idempotency ttl", cfg.Idempotency.TTL, 48 * time.Hour},
		{"cleanup interval", cfg.Idempotency.CleanupInterval, 30 * time.Minute},
	}
	for _, check := range durations {
		if check.got != check.want {
			t.Errorf("%s: expected %s, got %s", check.name, check.want, check.got)
		}
	}

	if cfg.Storage.MaxUploadSize != 5242880 {
		t.Errorf("unexpected max upload size %d", cfg.Storage.MaxUploadSize)
	}
	if len(cfg.Webhooks.AllowedHosts) != 2 {
		t.Fatalf("expected 2 allowed hosts, got %v", cfg.Webhooks.AllowedHosts)
	}
	if cfg.Features.EnableNotifications {
		t.Errorf("expected notifications flag disabled")
	}
	if !cfg.Features.EnableWishlist {
		t.Errorf("expected wishlist flag enabled")
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=forevish-dot\nAPI_STORAGE_MEDIA_BUCKET=media-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "forevish-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(invalid.Fields()) == 0 {
		t.Fatal("expected missing field names in validation error")
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := minimalEnv()
	env["API_PSP_STRIPE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	expected := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_FALLBACK_FILE": ".dot.local",
		"API_SECRET_PROJECT_IDS":   "prod=project-prod",
		"API_SECRET_VERSION_PINS":  "secret://stripe/api=5",
	}
	for key, want := range expected {
		if got := values[key]; got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(minimalEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if names := missing.Names(); len(names) != 1 || names[0] != "PSP.StripeAPIKey" {
			t.Fatalf("unexpected missing secrets %v", names)
		}
	}()

	Load(context.Background(),
		WithEnvMap(minimalEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := minimalEnv()
	env["API_PSP_STRIPE_WEBHOOK_SECRET"] = "sm://stripe/webhook"

	resolver := mapResolver(map[string]string{
		"secret://stripe/webhook": "legacy-secret",
	})

	cfg := loadWith(t, env, WithSecretResolver(resolver))
	if cfg.PSP.StripeWebhookSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
}
