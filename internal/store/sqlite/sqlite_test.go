package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*SqliteRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewSqliteRepository(sqlx.NewDb(db, "sqlite3")), mock
}

var availabilityColumns = []string{
	"id", "provider_key_id", "model", "is_available", "vendor_priority", "health_score", "created_at", "updated_at",
}

func TestAvailability_ListAvailable(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM model_availability WHERE model = \? AND is_available = 1`).
		WithArgs("deepseek-chat").
		WillReturnRows(sqlmock.NewRows(availabilityColumns).
			AddRow("a1", "pk-1", "deepseek-chat", true, 50, 90, now, now).
			AddRow("a2", "pk-2", "deepseek-chat", true, 10, 80, now, now))

	got, err := repo.Availability().ListAvailable(context.Background(), "deepseek-chat")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pk-1", got[0].ProviderKeyID)
	assert.Equal(t, 50, got[0].VendorPriority)
	assert.Equal(t, 80, got[1].HealthScore)
}

func TestAvailability_GetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM model_availability WHERE provider_key_id = \? AND model = \?`).
		WithArgs("pk-1", "gpt-4o").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Availability().Get(context.Background(), "pk-1", "gpt-4o")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAvailability_UpdateHealthScore(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE model_availability SET health_score = \?`).
		WithArgs(45, sqlmock.AnyArg(), "pk-1", "gpt-4o").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE model_availability SET health_score = \?`).
		WithArgs(45, sqlmock.AnyArg(), "pk-9", "gpt-4o").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Availability().UpdateHealthScore(ctx, "pk-1", "gpt-4o", 45))
	assert.ErrorIs(t, repo.Availability().UpdateHealthScore(ctx, "pk-9", "gpt-4o", 45), domain.ErrNotFound)
}

func TestCredentials_ListByIDs(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM provider_credentials WHERE is_enabled = 1 AND id IN \(\?, \?\)`).
		WithArgs("pk-1", "pk-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "vendor", "api_type", "base_url", "api_key_enc", "is_enabled", "created_at", "updated_at",
		}).AddRow("pk-1", "deepseek", "deepseek", "openai", "https://api.deepseek.com", "", true, now, now))

	got, err := repo.Credentials().ListByIDs(context.Background(), []string{"pk-1", "pk-2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProtocolOpenAI, got[0].APIType)

	got, err = repo.Credentials().ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChains_GetDecodesJSONColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM fallback_chains WHERE chain_id = \? AND is_active = 1`).
		WithArgs("tenant-chain").
		WillReturnRows(sqlmock.NewRows([]string{
			"chain_id", "name", "models_json", "trigger_status_codes_json", "trigger_error_types_json",
			"trigger_timeout_ms", "max_retries", "retry_delay_ms", "preserve_protocol", "is_active",
			"created_at", "updated_at",
		}).AddRow(
			"tenant-chain", "Tenant",
			`[{"vendor":"anthropic","model":"claude-sonnet-4","protocol":"anthropic"}]`,
			`[429,503]`, `["rate_limit"]`,
			30000, 2, 500, true, true, now, now,
		))

	chain, err := repo.Chains().Get(context.Background(), "tenant-chain")
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolAnthropic, chain.Models[0].Protocol)
	assert.Equal(t, []int{429, 503}, chain.TriggerStatusCodes)
	assert.True(t, chain.PreserveProtocol)
}

func TestChains_GetRejectsCorruptJSON(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM fallback_chains`).
		WillReturnRows(sqlmock.NewRows([]string{
			"chain_id", "name", "models_json", "trigger_status_codes_json", "trigger_error_types_json",
			"trigger_timeout_ms", "max_retries", "retry_delay_ms", "preserve_protocol", "is_active",
			"created_at", "updated_at",
		}).AddRow("bad", "Bad", `{not json`, `[]`, `[]`, 0, 0, 0, false, true, now, now))

	_, err := repo.Chains().Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO routing_configs`).WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx store.Repository) error {
		return tx.RoutingConfigs().Upsert(context.Background(), &domain.RoutingConfig{TenantID: "t1"})
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithTx_CommitsFallbackEvents(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO fallback_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx store.Repository) error {
		return tx.FallbackEvents().Log(context.Background(), &domain.FallbackEvent{
			ID: "e1", RequestID: "r1", ChainID: "default", FromModel: "gpt-4o", CreatedAt: time.Now(),
		})
	})
	assert.NoError(t, err)
}
