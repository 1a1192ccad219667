package monitor

import (
	"context"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/segments/internal/infrastructure/buffer"
)

// PingFunc checks that the primary database answers. Both
// (*pgxpool.Pool).Ping and (*sql.DB).PingContext fit.
type PingFunc func(ctx context.Context) error

// Targets lists what the monitor watches. Redis and Buffer are optional.
type Targets struct {
	Driver   string
	Database PingFunc
	Redis    *redislib.Client
	Buffer   *buffer.Store
}

type Monitor struct {
	targets Targets

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(targets Targets, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		targets:  targets,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether the event broker is reachable.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.RedisEnabled && m.status.Redis
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Refresh runs every check once and stores the result.
func (m *Monitor) Refresh() Status {
	bufferOK, bufferSize := m.checkBuffer()
	status := Status{
		Driver:       m.targets.Driver,
		Database:     m.checkDatabase(),
		RedisEnabled: m.targets.Redis != nil,
		Redis:        m.checkRedis(),
		Buffer:       bufferOK,
		BufferSize:   bufferSize,
		LastCheck:    time.Now(),
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	if !status.Healthy() {
		m.logger.Warn("dependencies unhealthy",
			zap.Bool("database", status.Database),
			zap.Bool("redis", status.Redis))
	}
	return status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) checkDatabase() bool {
	if m.targets.Database == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.targets.Database(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.targets.Redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.targets.Redis.Ping(ctx).Err() == nil
}

func (m *Monitor) checkBuffer() (bool, int) {
	if m.targets.Buffer == nil {
		return false, 0
	}
	size, err := m.targets.Buffer.Size()
	if err != nil {
		m.logger.Warn("buffer size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
