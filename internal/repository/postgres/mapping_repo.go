package postgres

/*
Файл mapping_repo.go — хранилище каталога CAMS (таблица agent_inboxes).

Ключевые инварианты слоя:
- Уникальность адреса обеспечивается ТОЛЬКО constraint'ом БД: Create делает
  атомарный INSERT, без предварительного SELECT (check-then-insert — это гонка).
- Get возвращает nil, nil для отсутствующей записи: отсутствие — валидный
  результат поиска, а не сбой.
- Update собирает SET только из allow-list полей патча и в том же statement
  всегда штампует last_updated_timestamp и updated_by.
- Транзиентные сбои БД заворачиваются в domain.StoreError — единственный вид
  ошибок, который клиент каталога ретраит.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/cams-router/internal/domain"
)

const uniqueViolationCode = "23505"

const mappingColumns = `ai_agent_address, inbox_destination_type, inbox_name, status,
	description, owner_team, registration_timestamp, last_updated_timestamp,
	last_health_check_timestamp, updated_by`

type MappingRepo struct {
	pool *pgxpool.Pool
}

// NewMappingRepo создает пул соединений и репозиторий поверх него.
// Каждая операция берет соединение из пула на время одного вызова.
func NewMappingRepo(ctx context.Context, connString string, maxConns, minConns int32) (*MappingRepo, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	if minConns > 0 {
		poolCfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	return &MappingRepo{pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS agent_inboxes (
	ai_agent_address            TEXT PRIMARY KEY,
	inbox_destination_type      TEXT NOT NULL,
	inbox_name                  TEXT NOT NULL,
	status                      TEXT NOT NULL DEFAULT 'ACTIVE',
	description                 TEXT,
	owner_team                  TEXT,
	registration_timestamp      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_updated_timestamp      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_health_check_timestamp TIMESTAMPTZ,
	updated_by                  TEXT NOT NULL DEFAULT 'router_service'
)`

// Migrate создает таблицу каталога при старте сервиса.
func (r *MappingRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate agent_inboxes: %w", err)
	}
	return nil
}

// Create атомарно регистрирует новую запись. Гонка двух регистраций одного
// адреса разрешается constraint'ом: ровно один INSERT проходит, второй
// получает ErrDuplicateAgent.
func (r *MappingRepo) Create(ctx context.Context, m *domain.AgentMapping) (*domain.AgentMapping, error) {
	query := `
		INSERT INTO agent_inboxes (
			ai_agent_address, inbox_destination_type, inbox_name,
			status, description, owner_team, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + mappingColumns

	row := r.pool.QueryRow(ctx, query,
		m.Address, m.DestinationType, m.InboxName,
		m.Status, m.Description, m.OwnerTeam, m.UpdatedBy,
	)

	out, err := scanMapping(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, domain.ErrDuplicateAgent
		}
		return nil, &domain.StoreError{Op: "create", Err: err}
	}
	return out, nil
}

// Get возвращает запись по адресу; nil, nil — если записи нет.
func (r *MappingRepo) Get(ctx context.Context, address string) (*domain.AgentMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM agent_inboxes WHERE ai_agent_address = $1`

	out, err := scanMapping(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return out, nil
}

// Update применяет патч одним statement'ом. last_updated_timestamp штампуется
// через GREATEST, чтобы он оставался монотонно неубывающим даже при сдвиге
// часов на сервере БД.
func (r *MappingRepo) Update(ctx context.Context, address string, patch domain.MappingPatch, updatedBy string) (*domain.AgentMapping, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsZero() {
		return nil, &domain.ValidationError{Reason: "no fields to update"}
	}

	query, args := buildUpdateQuery(patch, updatedBy, address)

	out, err := scanMapping(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, &domain.StoreError{Op: "update", Err: err}
	}
	return out, nil
}

// buildUpdateQuery собирает SET-клаузу строго из allow-list полей патча.
func buildUpdateQuery(patch domain.MappingPatch, updatedBy, address string) (string, []interface{}) {
	set := []string{
		"last_updated_timestamp = GREATEST(NOW(), last_updated_timestamp)",
		"updated_by = $1",
	}
	args := []interface{}{updatedBy}
	idx := 2

	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if patch.DestinationType != nil {
		add("inbox_destination_type", *patch.DestinationType)
	}
	if patch.InboxName != nil {
		add("inbox_name", *patch.InboxName)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.OwnerTeam != nil {
		add("owner_team", *patch.OwnerTeam)
	}
	if patch.LastHealthCheckAt != nil {
		add("last_health_check_timestamp", *patch.LastHealthCheckAt)
	}

	query := fmt.Sprintf(
		"UPDATE agent_inboxes SET %s WHERE ai_agent_address = $%d RETURNING %s",
		strings.Join(set, ", "), idx, mappingColumns,
	)
	args = append(args, address)
	return query, args
}

// Delete удаляет запись. Отсутствие записи — ErrAgentNotFound:
// политика delete-of-missing едина по всем слоям (наблюдаемый 404).
func (r *MappingRepo) Delete(ctx context.Context, address string) error {
	query := `DELETE FROM agent_inboxes WHERE ai_agent_address = $1 RETURNING ai_agent_address`

	var deleted string
	err := r.pool.QueryRow(ctx, query, address).Scan(&deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAgentNotFound
		}
		return &domain.StoreError{Op: "delete", Err: err}
	}
	return nil
}

// List возвращает страницу записей с опциональными фильтрами.
func (r *MappingRepo) List(ctx context.Context, f domain.MappingFilter) ([]*domain.AgentMapping, error) {
	var conditions []string
	var args []interface{}

	if f.Status != nil {
		args = append(args, *f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.OwnerTeam != nil {
		args = append(args, *f.OwnerTeam)
		conditions = append(conditions, fmt.Sprintf("owner_team = $%d", len(args)))
	}

	query := `SELECT ` + mappingColumns + ` FROM agent_inboxes`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY registration_timestamp DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	// Пустой слайс вместо nil, чтобы в JSON был [] вместо null
	results := make([]*domain.AgentMapping, 0)
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: "list", Err: err}
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	return results, nil
}

// Ping проверяет доступность базы при старте.
func (r *MappingRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *MappingRepo) Close() {
	r.pool.Close()
}

func scanMapping(row pgx.Row) (*domain.AgentMapping, error) {
	var m domain.AgentMapping
	var description, ownerTeam sql.NullString
	var lastHealthCheck sql.NullTime

	err := row.Scan(
		&m.Address,
		&m.DestinationType,
		&m.InboxName,
		&m.Status,
		&description,
		&ownerTeam,
		&m.RegisteredAt,
		&m.LastUpdatedAt,
		&lastHealthCheck,
		&m.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	// Маппим NULL значения в указатели (если есть)
	if description.Valid {
		val := description.String
		m.Description = &val
	}
	if ownerTeam.Valid {
		val := ownerTeam.String
		m.OwnerTeam = &val
	}
	if lastHealthCheck.Valid {
		val := lastHealthCheck.Time
		m.LastHealthCheckAt = &val
	}

	return &m, nil
}
