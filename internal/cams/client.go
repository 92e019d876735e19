package cams

/*
Файл client.go — устойчивый клиент каталога CAMS. Прячет от пайплайна
транзиентность хранилища: Redis-кэш (позитивный и негативный) перед БД,
ограниченные ретраи с экспоненциальным бэкоффом и Circuit Breaker.

Контракт ретраев: повторяем ТОЛЬКО domain.StoreError. Not-found — валидный
терминальный результат поиска, дубликат — детерминированный бизнес-исход;
ни то, ни другое не ретраится.
*/

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/metrics"
)

// MappingStore описывает требования клиента к хранилищу каталога.
type MappingStore interface {
	Create(ctx context.Context, m *domain.AgentMapping) (*domain.AgentMapping, error)
	Get(ctx context.Context, address string) (*domain.AgentMapping, error)
	Update(ctx context.Context, address string, patch domain.MappingPatch, updatedBy string) (*domain.AgentMapping, error)
	Delete(ctx context.Context, address string) error
	List(ctx context.Context, f domain.MappingFilter) ([]*domain.AgentMapping, error)
}

// Config — настройки устойчивости клиента.
type Config struct {
	RetryAttempts  uint
	RetryBaseDelay time.Duration

	CacheTTL         time.Duration
	NegativeCacheTTL time.Duration

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.NegativeCacheTTL == 0 {
		c.NegativeCacheTTL = 5 * time.Second
	}
	if c.CBMaxRequests == 0 {
		c.CBMaxRequests = 3
	}
	if c.CBInterval == 0 {
		c.CBInterval = 5 * time.Second
	}
	if c.CBTimeout == 0 {
		c.CBTimeout = 30 * time.Second
	}
}

type Client struct {
	store   MappingStore
	cache   *redis.Client // nil — кэш выключен
	cb      *gobreaker.CircuitBreaker
	cfg     Config
	metrics *metrics.Sink
	logger  *zap.Logger
}

func New(store MappingStore, cache *redis.Client, sink *metrics.Sink, logger *zap.Logger, cfg Config) *Client {
	cfg.applyDefaults()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cams-store",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		store:   store,
		cache:   cache,
		cb:      cb,
		cfg:     cfg,
		metrics: sink,
		logger:  logger.Named("cams-client"),
	}
}

// Resolve возвращает запись каталога по адресу; nil, nil — адрес не
// зарегистрирован. Ошибка означает, что каталог недоступен даже после ретраев.
func (c *Client) Resolve(ctx context.Context, address string) (m *domain.AgentMapping, err error) {
	defer c.observe("resolve", time.Now(), &err)

	if hit, cached, negative := c.cacheGet(ctx, address); hit {
		if negative {
			return nil, nil
		}
		return cached, nil
	}

	m, err = c.getWithRetry(ctx, address)
	if err != nil {
		return nil, err
	}

	c.cacheSet(ctx, address, m)
	return m, nil
}

// getWithRetry — поход в хранилище под Circuit Breaker'ом с ограниченными
// ретраями. Бэкофф экспоненциальный: базовая задержка удваивается на попытку.
func (c *Client) getWithRetry(ctx context.Context, address string) (*domain.AgentMapping, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		var out *domain.AgentMapping

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(c.cfg.RetryAttempts),
			retry.Delay(c.cfg.RetryBaseDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(domain.IsTransient),
			retry.LastErrorOnly(true),
		)

		retryErr := r.Do(func() error {
			var callErr error
			out, callErr = c.store.Get(ctx, address)
			if callErr != nil {
				c.logger.Warn("directory lookup attempt failed",
					zap.String("address", address),
					zap.Error(callErr))
			}
			return callErr
		})

		return out, retryErr
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.AgentMapping), nil
}

// Register создает запись. ErrDuplicateAgent пробрасывается как есть —
// дубликат детерминирован и ретраям не подлежит.
func (c *Client) Register(ctx context.Context, m *domain.AgentMapping) (out *domain.AgentMapping, err error) {
	defer c.observe("register", time.Now(), &err)

	out, err = c.store.Create(ctx, m)
	if err != nil {
		return nil, err
	}

	c.cacheSet(ctx, out.Address, out)
	c.logger.Info("agent mapping registered",
		zap.String("address", out.Address),
		zap.String("inbox", out.InboxName))
	return out, nil
}

// Mutate применяет типизированный патч. ErrAgentNotFound пробрасывается verbatim.
func (c *Client) Mutate(ctx context.Context, address string, patch domain.MappingPatch, updatedBy string) (out *domain.AgentMapping, err error) {
	defer c.observe("mutate", time.Now(), &err)

	out, err = c.store.Update(ctx, address, patch, updatedBy)
	if err != nil {
		return nil, err
	}

	// Свежая запись перекрывает и позитивный, и негативный кэш
	c.cacheSet(ctx, address, out)
	return out, nil
}

// Remove удаляет запись. Отсутствующая запись — ErrAgentNotFound, единая
// политика delete-of-missing по всем слоям.
func (c *Client) Remove(ctx context.Context, address string) (err error) {
	defer c.observe("remove", time.Now(), &err)

	if err = c.store.Delete(ctx, address); err != nil {
		return err
	}

	c.cacheInvalidate(ctx, address)
	c.logger.Info("agent mapping removed", zap.String("address", address))
	return nil
}

// List — постраничная выборка, без кэширования.
func (c *Client) List(ctx context.Context, f domain.MappingFilter) (items []*domain.AgentMapping, err error) {
	defer c.observe("list", time.Now(), &err)
	return c.store.List(ctx, f)
}

// observe фиксирует длительность и статус операции независимо от исхода.
func (c *Client) observe(op string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	c.metrics.DirectoryOpDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}
