//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stafflink/shift-digest/internal/app"
	"github.com/stafflink/shift-digest/internal/auth"
	"github.com/stafflink/shift-digest/internal/config"
	"github.com/stafflink/shift-digest/internal/domain"
	"github.com/stafflink/shift-digest/internal/testutil"
)

const (
	testJWTSecret   = "test-secret-key"
	testFromAddress = "digests@stafflink.example"
)

var (
	testServer *httptest.Server
	testDB     *pgxpool.Pool

	operatorToken string
	adminToken    string

	// Mailpit receives everything the dispatcher sends
	mailpitContainer *testutil.MailpitContainer
	mailpitClient    *MailpitClient
)

// operatorClient returns a client authenticated as an operator.
func operatorClient() *testutil.Client {
	return testutil.NewClient(testServer.URL).WithToken(operatorToken)
}

// adminClient returns a client authenticated as an admin.
func adminClient() *testutil.Client {
	return testutil.NewClient(testServer.URL).WithToken(adminToken)
}

// anonClient returns a client without credentials.
func anonClient() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

// resetQueue empties the queue and agency tables for test isolation.
func resetQueue(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), "TRUNCATE notification_queue, agencies CASCADE")
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	mailpitContainer, err = testutil.NewMailpitContainer(ctx)
	if err != nil {
		log.Fatalf("start mailpit: %v", err)
	}
	defer func() {
		if err := mailpitContainer.Terminate(ctx); err != nil {
			log.Printf("terminate mailpit: %v", err)
		}
	}()

	mailpitClient = NewMailpitClient(
		mailpitContainer.APIHost,
		mailpitContainer.APIPort,
	)

	// Migrations are applied by app.New from the embedded source.
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		JWT: config.JWTConfig{
			SecretKey:           testJWTSecret,
			AccessTokenDuration: time.Hour,
		},
		Digest: config.DigestConfig{
			// Entries become due almost immediately so tests can trigger
			// a dispatch right after enqueueing.
			DebounceWindow: time.Millisecond,
			// Scheduler DISABLED: tests trigger runs via POST /digest/run so
			// a background cron run cannot claim entries mid-test.
			CronSpec:  "",
			BatchSize: 100,
			Retry: config.RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    time.Minute,
				MaxBackoff:        30 * time.Minute,
				BackoffMultiplier: 2.0,
			},
		},
		Email: config.EmailConfig{
			Enabled:     true,
			SMTPHost:    mailpitContainer.SMTPHost,
			SMTPPort:    mailpitContainer.SMTPPort,
			FromAddress: testFromAddress,
			RateLimit:   100,
			SendTimeout: 10 * time.Second,
		},
		Branding: config.BrandingConfig{
			AgencyName:     "Default Staffing",
			ContactEmail:   "support@stafflink.example",
			PreferencesURL: "http://localhost:3000/preferences",
		},
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	// Direct DB connection for tests that inspect or reset state
	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	authenticator := auth.NewAuthenticator(auth.Config{
		SecretKey:           testJWTSecret,
		AccessTokenDuration: time.Hour,
	})
	operatorToken, err = authenticator.Issue("test-operator", domain.RoleOperator)
	if err != nil {
		log.Fatalf("issue operator token: %v", err)
	}
	adminToken, err = authenticator.Issue("test-admin", domain.RoleAdmin)
	if err != nil {
		log.Fatalf("issue admin token: %v", err)
	}

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
