package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/store"
	"github.com/nulzo/route-engine/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{
		db:       r.db,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Availability() store.AvailabilityRepository {
	return &availabilityRepo{db: r.executor}
}

func (r *SqliteRepository) Credentials() store.CredentialRepository {
	return &credentialRepo{db: r.executor}
}

func (r *SqliteRepository) Chains() store.ChainRepository {
	return &chainRepo{db: r.executor}
}

func (r *SqliteRepository) Capabilities() store.CapabilityRepository {
	return &capabilityRepo{db: r.executor}
}

func (r *SqliteRepository) RoutingConfigs() store.RoutingConfigRepository {
	return &routingConfigRepo{db: r.executor}
}

func (r *SqliteRepository) FallbackEvents() store.FallbackEventRepository {
	return &fallbackEventRepo{db: r.executor}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

type availabilityRepo struct {
	db DB
}

func (r *availabilityRepo) ListAvailable(ctx context.Context, modelName string) ([]domain.ModelAvailability, error) {
	var rows []model.ModelAvailability
	query := `SELECT * FROM model_availability WHERE model = ? AND is_available = 1`
	if err := r.db.SelectContext(ctx, &rows, query, modelName); err != nil {
		return nil, fmt.Errorf("list availability for %s: %w", modelName, err)
	}

	out := make([]domain.ModelAvailability, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToDomain())
	}
	return out, nil
}

func (r *availabilityRepo) Get(ctx context.Context, providerKeyID, modelName string) (*domain.ModelAvailability, error) {
	var row model.ModelAvailability
	query := `SELECT * FROM model_availability WHERE provider_key_id = ? AND model = ?`
	if err := r.db.GetContext(ctx, &row, query, providerKeyID, modelName); err != nil {
		return nil, notFound(err)
	}
	a := row.ToDomain()
	return &a, nil
}

func (r *availabilityRepo) UpdateHealthScore(ctx context.Context, providerKeyID, modelName string, score int) error {
	query := `UPDATE model_availability SET health_score = ?, updated_at = ? WHERE provider_key_id = ? AND model = ?`
	res, err := r.db.ExecContext(ctx, query, score, time.Now(), providerKeyID, modelName)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *availabilityRepo) Upsert(ctx context.Context, a *domain.ModelAvailability) error {
	row := model.ModelAvailability{
		ID:             a.ID,
		ProviderKeyID:  a.ProviderKeyID,
		Model:          a.Model,
		IsAvailable:    a.IsAvailable,
		VendorPriority: a.VendorPriority,
		HealthScore:    a.HealthScore,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	query := `
	INSERT INTO model_availability (
		id, provider_key_id, model, is_available, vendor_priority, health_score, created_at, updated_at
	) VALUES (
		:id, :provider_key_id, :model, :is_available, :vendor_priority, :health_score, :created_at, :updated_at
	)
	ON CONFLICT(provider_key_id, model) DO UPDATE SET
		is_available = excluded.is_available,
		vendor_priority = excluded.vendor_priority,
		health_score = excluded.health_score,
		updated_at = excluded.updated_at`
	_, err := r.db.NamedExecContext(ctx, query, row)
	return err
}

type credentialRepo struct {
	db DB
}

func (r *credentialRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.ProviderCredential, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// sqlite uses '?' bindvars, so the expanded query needs no rebind
	query, args, err := sqlx.In(`SELECT * FROM provider_credentials WHERE is_enabled = 1 AND id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var rows []model.ProviderCredential
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	out := make([]domain.ProviderCredential, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToDomain())
	}
	return out, nil
}

func (r *credentialRepo) Upsert(ctx context.Context, c *domain.ProviderCredential) error {
	row := model.ProviderCredential{
		ID:        c.ID,
		Name:      c.Name,
		Vendor:    c.Vendor,
		APIType:   string(c.APIType),
		BaseURL:   c.BaseURL,
		IsEnabled: true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	query := `
	INSERT INTO provider_credentials (id, name, vendor, api_type, base_url, api_key_enc, is_enabled, created_at, updated_at)
	VALUES (:id, :name, :vendor, :api_type, :base_url, :api_key_enc, :is_enabled, :created_at, :updated_at)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		vendor = excluded.vendor,
		api_type = excluded.api_type,
		base_url = excluded.base_url,
		is_enabled = excluded.is_enabled,
		updated_at = excluded.updated_at`
	_, err := r.db.NamedExecContext(ctx, query, row)
	return err
}

type chainRepo struct {
	db DB
}

func (r *chainRepo) Get(ctx context.Context, chainID string) (*domain.FallbackChain, error) {
	var row model.FallbackChain
	query := `SELECT * FROM fallback_chains WHERE chain_id = ? AND is_active = 1`
	if err := r.db.GetContext(ctx, &row, query, chainID); err != nil {
		return nil, notFound(err)
	}
	chain, err := row.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("decode chain %s: %w", chainID, err)
	}
	return &chain, nil
}

func (r *chainRepo) ListActive(ctx context.Context) ([]domain.FallbackChain, error) {
	var rows []model.FallbackChain
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM fallback_chains WHERE is_active = 1`); err != nil {
		return nil, err
	}

	out := make([]domain.FallbackChain, 0, len(rows))
	for _, row := range rows {
		chain, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("decode chain %s: %w", row.ChainID, err)
		}
		out = append(out, chain)
	}
	return out, nil
}

func (r *chainRepo) Upsert(ctx context.Context, c *domain.FallbackChain) error {
	row, err := model.FallbackChainFromDomain(c)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO fallback_chains (
		chain_id, name, models_json, trigger_status_codes_json, trigger_error_types_json,
		trigger_timeout_ms, max_retries, retry_delay_ms, preserve_protocol, is_active,
		created_at, updated_at
	) VALUES (
		:chain_id, :name, :models_json, :trigger_status_codes_json, :trigger_error_types_json,
		:trigger_timeout_ms, :max_retries, :retry_delay_ms, :preserve_protocol, :is_active,
		:created_at, :updated_at
	)
	ON CONFLICT(chain_id) DO UPDATE SET
		name = excluded.name,
		models_json = excluded.models_json,
		trigger_status_codes_json = excluded.trigger_status_codes_json,
		trigger_error_types_json = excluded.trigger_error_types_json,
		trigger_timeout_ms = excluded.trigger_timeout_ms,
		max_retries = excluded.max_retries,
		retry_delay_ms = excluded.retry_delay_ms,
		preserve_protocol = excluded.preserve_protocol,
		is_active = excluded.is_active,
		updated_at = excluded.updated_at`
	_, err = r.db.NamedExecContext(ctx, query, row)
	return err
}

type capabilityRepo struct {
	db DB
}

func (r *capabilityRepo) ListActive(ctx context.Context) ([]domain.CapabilityRequirement, error) {
	var rows []model.CapabilityTag
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM capability_tags WHERE is_active = 1 ORDER BY priority DESC`); err != nil {
		return nil, err
	}

	out := make([]domain.CapabilityRequirement, 0, len(rows))
	for _, row := range rows {
		req, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("decode capability tag %s: %w", row.TagID, err)
		}
		out = append(out, req)
	}
	return out, nil
}

func (r *capabilityRepo) Upsert(ctx context.Context, req *domain.CapabilityRequirement) error {
	row, err := model.CapabilityTagFromDomain(req)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO capability_tags (
		tag_id, name, category, priority, required_protocol, required_skills_json, required_models_json,
		requires_extended_thinking, requires_cache_control, requires_vision, is_active
	) VALUES (
		:tag_id, :name, :category, :priority, :required_protocol, :required_skills_json, :required_models_json,
		:requires_extended_thinking, :requires_cache_control, :requires_vision, :is_active
	)
	ON CONFLICT(tag_id) DO UPDATE SET
		name = excluded.name,
		category = excluded.category,
		priority = excluded.priority,
		required_protocol = excluded.required_protocol,
		required_skills_json = excluded.required_skills_json,
		required_models_json = excluded.required_models_json,
		requires_extended_thinking = excluded.requires_extended_thinking,
		requires_cache_control = excluded.requires_cache_control,
		requires_vision = excluded.requires_vision,
		is_active = excluded.is_active`
	_, err = r.db.NamedExecContext(ctx, query, row)
	return err
}

type routingConfigRepo struct {
	db DB
}

func (r *routingConfigRepo) GetByTenant(ctx context.Context, tenantID string) (*domain.RoutingConfig, error) {
	var row model.RoutingConfig
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM routing_configs WHERE tenant_id = ?`, tenantID); err != nil {
		return nil, notFound(err)
	}
	cfg := row.ToDomain()
	return &cfg, nil
}

func (r *routingConfigRepo) Upsert(ctx context.Context, c *domain.RoutingConfig) error {
	query := `
	INSERT INTO routing_configs (tenant_id, default_model, fallback_chain_id, cost_strategy_id, updated_at)
	VALUES (:tenant_id, :default_model, :fallback_chain_id, :cost_strategy_id, :updated_at)
	ON CONFLICT(tenant_id) DO UPDATE SET
		default_model = excluded.default_model,
		fallback_chain_id = excluded.fallback_chain_id,
		cost_strategy_id = excluded.cost_strategy_id,
		updated_at = excluded.updated_at`
	_, err := r.db.NamedExecContext(ctx, query, model.RoutingConfigFromDomain(c))
	return err
}

type fallbackEventRepo struct {
	db DB
}

func (r *fallbackEventRepo) Log(ctx context.Context, event *domain.FallbackEvent) error {
	query := `
	INSERT INTO fallback_events (
		id, request_id, chain_id, from_model, to_model, status_code, error_type, exhausted, reason, created_at
	) VALUES (
		:id, :request_id, :chain_id, :from_model, :to_model, :status_code, :error_type, :exhausted, :reason, :created_at
	)`
	_, err := r.db.NamedExecContext(ctx, query, model.FallbackEventFromDomain(event))
	return err
}

func (r *fallbackEventRepo) GetRecent(ctx context.Context, chainID string, limit int) ([]domain.FallbackEvent, error) {
	var rows []model.FallbackEvent
	query := `SELECT * FROM fallback_events WHERE chain_id = ? ORDER BY created_at DESC LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, query, chainID, limit); err != nil {
		return nil, err
	}

	out := make([]domain.FallbackEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToDomain())
	}
	return out, nil
}
