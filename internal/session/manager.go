package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"capacityplanner/internal/cache"
	"capacityplanner/internal/metrics"
	"capacityplanner/internal/model"
	"capacityplanner/internal/planner"
)

// ErrViewNotFound 视图不存在或已关闭
var ErrViewNotFound = errors.New("view not found")

const demandOptionsKey = "demand-options"

// Backend 数据接口
type Backend interface {
	LoadForecast(ctx context.Context) ([]model.ForecastRow, error)
	LoadLedger(ctx context.Context) ([]model.ForecastRow, error)
	LoadDemandOptions(ctx context.Context) ([]model.DemandOption, error)
	planner.CellWriter
}

// Options 管理器配置
type Options struct {
	Defaults          planner.SaveDefaults
	MaxParallelWrites int
	OptionsTTL        time.Duration
	Cache             cache.Cache
	Metrics           *metrics.Registry
	Now               func() time.Time
}

// Manager 页面视图管理（每次打开页面一个视图）
type Manager struct {
	backend    Backend
	saver      *planner.Coordinator
	cache      cache.Cache
	optionsTTL time.Duration
	metrics    *metrics.Registry
	now        func() time.Time

	views map[string]*View
	mu    sync.RWMutex
}

// NewManager 创建视图管理器
func NewManager(b Backend, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.Defaults == (planner.SaveDefaults{}) {
		opts.Defaults = planner.DefaultSaveDefaults()
	}
	return &Manager{
		backend:    b,
		saver:      planner.NewCoordinator(recordingWriter{b, opts.Metrics}, opts.Defaults, opts.MaxParallelWrites),
		cache:      opts.Cache,
		optionsTTL: opts.OptionsTTL,
		metrics:    opts.Metrics,
		now:        opts.Now,
		views:      make(map[string]*View),
	}
}

// Open 打开新视图：先加载预测表，再加载需求账本
// 加载失败时视图仍会保留（状态为 failed），同时返回错误
func (m *Manager) Open(ctx context.Context) (*View, error) {
	v := &View{
		ID:       uuid.NewString(),
		m:        m,
		status:   StatusLoading,
		openedAt: m.now(),
		touched:  m.now(),
		state:    planner.NewState(nil, planner.WithClock(m.now)),
	}
	v.mu.Lock()
	m.mu.Lock()
	m.views[v.ID] = v
	m.mu.Unlock()
	m.metrics.ViewOpened()

	err := v.load(ctx)
	rows, ledger := len(v.state.Table.Rows), len(v.state.Ledger.Rows)
	v.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("view", v.ID).Msg("视图加载失败")
		return v, err
	}
	log.Info().Str("view", v.ID).Int("rows", rows).Int("ledger", ledger).Msg("视图已打开")
	return v, nil
}

// Get 获取视图
func (m *Manager) Get(id string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.views[id]
	if !ok {
		return nil, ErrViewNotFound
	}
	return v, nil
}

// Close 关闭视图；有未保存修改时按 Prompter 的选择处理，返回是否已关闭
func (m *Manager) Close(ctx context.Context, id string, p planner.Prompter) (bool, error) {
	v, err := m.Get(id)
	if err != nil {
		return false, err
	}
	ok, err := v.Leave(ctx, p)
	if err != nil || !ok {
		return false, err
	}
	m.remove(id)
	return true, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	_, ok := m.views[id]
	delete(m.views, id)
	m.mu.Unlock()
	if ok {
		m.metrics.ViewClosed()
	}
}

// Sweep 清理超过 idle 未访问且没有未保存修改的视图，返回清理数量
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.RLock()
	candidates := make([]*View, 0)
	for _, v := range m.views {
		candidates = append(candidates, v)
	}
	m.mu.RUnlock()

	n := 0
	for _, v := range candidates {
		if v.idleSince(cutoff) {
			m.remove(v.ID)
			n++
		}
	}
	if n > 0 {
		log.Info().Int("views", n).Msg("已清理空闲视图")
	}
	return n
}

// Count 视图数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// DemandOptions 新增需求行可选名称（带缓存）
func (m *Manager) DemandOptions(ctx context.Context) ([]model.DemandOption, error) {
	if data, ok, err := m.cache.Get(ctx, demandOptionsKey); err != nil {
		log.Warn().Err(err).Msg("读取选项缓存失败")
	} else if ok {
		var opts []model.DemandOption
		if err := json.Unmarshal(data, &opts); err == nil {
			m.metrics.RecordCacheLookup(true)
			return opts, nil
		}
	}
	m.metrics.RecordCacheLookup(false)

	opts, err := m.backend.LoadDemandOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load demand options: %w", err)
	}
	if data, err := json.Marshal(opts); err == nil {
		if err := m.cache.Set(ctx, demandOptionsKey, data, m.optionsTTL); err != nil {
			log.Warn().Err(err).Msg("写入选项缓存失败")
		}
	}
	return opts, nil
}

// invalidateDemandOptions 丢弃选项缓存，下次读取时重新加载
func (m *Manager) invalidateDemandOptions(ctx context.Context) {
	if err := m.cache.Delete(ctx, demandOptionsKey); err != nil {
		log.Warn().Err(err).Msg("清除选项缓存失败")
	}
}

// FindDemandOption 按 bcId 查找可选名称
func (m *Manager) FindDemandOption(ctx context.Context, bcID int64) (model.DemandOption, error) {
	opts, err := m.DemandOptions(ctx)
	if err != nil {
		return model.DemandOption{}, err
	}
	for _, o := range opts {
		if o.BcID == bcID {
			return o, nil
		}
	}
	return model.DemandOption{}, fmt.Errorf("demand option %d not found", bcID)
}

// recordingWriter 逐个单元格记录写入结果
type recordingWriter struct {
	w       planner.CellWriter
	metrics *metrics.Registry
}

func (r recordingWriter) SaveMainCell(ctx context.Context, p model.MainCellPayload) error {
	err := r.w.SaveMainCell(ctx, p)
	r.metrics.RecordSave(string(planner.GroupMain), resultLabel(err), 1)
	return err
}

func (r recordingWriter) SaveLedgerCell(ctx context.Context, p model.LedgerCellPayload) error {
	err := r.w.SaveLedgerCell(ctx, p)
	r.metrics.RecordSave(string(planner.GroupLedger), resultLabel(err), 1)
	return err
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
