package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/skycast-be/internal/auth"
	"github.com/isdelr/skycast-be/internal/config"
	"github.com/isdelr/skycast-be/internal/database"
	"github.com/isdelr/skycast-be/internal/mailer"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

// outbox captures dispatched mail synchronously.
type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(t *testing.T) mailer.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no mail sent")
	return o.sent[len(o.sent)-1]
}

type authFixture struct {
	db     *sql.DB
	store  *SQLiteAccountStore
	events *EventService
	tokens *auth.TokenService
	mail   *outbox
	svc    *AuthService
	clock  *time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestDB(t)
	f := &authFixture{
		db:     db,
		store:  NewAccountStore(db),
		events: NewEventService(db),
		tokens: auth.NewTokenService("test-secret", 0),
		mail:   &outbox{},
	}
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	f.clock = &now

	cfg := config.AuthConfig{
		JWTSecret:        "test-secret",
		ResetTokenTTL:    time.Hour,
		ResetURLBase:     "http://localhost:3000/reset-password",
		AllowDirectReset: true,
	}
	f.svc = NewAuthService(f.store, f.tokens, auth.NewBcryptHasher(bcrypt.MinCost), f.mail, f.events, cfg)
	f.svc.now = func() time.Time { return *f.clock }
	f.svc.dispatch = func(m mailer.Mailer, msg mailer.Message) { _ = m.Send(context.Background(), msg) }
	return f
}

func (f *authFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func strPtr(s string) *string { return &s }
