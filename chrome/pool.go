package chrome

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
)

// PageHandle wraps a pooled browser tab with health tracking metadata.
type PageHandle struct {
	ID   int64
	Page *rod.Page

	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
}

func newPageHandle(id int64, page *rod.Page) *PageHandle {
	return &PageHandle{
		ID:      id,
		Page:    page,
		created: time.Now(),
	}
}

// RecordSuccess decreases the error score (min 0).
func (h *PageHandle) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *PageHandle) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire reports whether the tab should be replaced based on its
// health metrics.
func (h *PageHandle) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= 3.0 {
		return true
	}
	if h.useCount >= 50 {
		return true
	}
	if time.Since(h.created) >= 50*time.Minute {
		return true
	}
	return false
}

// PoolConfig holds configuration for the adaptive tab pool.
type PoolConfig struct {
	MinPages     int
	HardMax      int
	MemThreshold float64 // 0.0–1.0, fraction of heap memory
	ScaleStep    float64 // 0.0–1.0, fraction to grow/shrink
}

// pageFactory creates a fresh browser tab.
type pageFactory func() (*rod.Page, error)

// pageDestroyer closes a tab.
type pageDestroyer func(page *rod.Page)

// PagePool manages browser tabs with automatic scaling based on memory
// pressure and utilization, retiring unhealthy tabs as they return.
type PagePool struct {
	cfg       PoolConfig
	factory   pageFactory
	destroyer pageDestroyer

	idle    chan *PageHandle
	mu      sync.Mutex
	all     map[int64]*PageHandle // all live handles
	nextID  atomic.Int64
	active  atomic.Int32 // currently checked-out handles
	stopped chan struct{}
}

// newPagePool creates and starts a pool, pre-creating MinPages tabs.
func newPagePool(cfg PoolConfig, factory pageFactory, destroyer pageDestroyer) *PagePool {
	if cfg.MinPages < 1 {
		cfg.MinPages = 1
	}
	if cfg.HardMax < cfg.MinPages {
		cfg.HardMax = cfg.MinPages
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}

	p := &PagePool{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		idle:      make(chan *PageHandle, cfg.HardMax),
		all:       make(map[int64]*PageHandle),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinPages; i++ {
		h, err := p.createHandle()
		if err != nil {
			slog.Warn("page_pool: failed to pre-create tab", "error", err)
			continue
		}
		p.idle <- h
	}

	go p.scalingLoop()
	return p
}

// Get acquires a tab from the pool. It blocks until one is available or
// creates a new one if under the hard max.
func (p *PagePool) Get() (*PageHandle, error) {
	select {
	case h := <-p.idle:
		p.active.Add(1)
		return h, nil
	default:
	}

	p.mu.Lock()
	if len(p.all) < p.cfg.HardMax {
		h, err := p.createHandleLocked()
		p.mu.Unlock()
		if err == nil {
			p.active.Add(1)
			return h, nil
		}
		// Fall through to blocking wait.
	} else {
		p.mu.Unlock()
	}

	h := <-p.idle
	p.active.Add(1)
	return h, nil
}

// Put returns a tab to the pool. Unhealthy tabs are destroyed; a replacement
// is created only when the pool has fallen below MinPages.
func (p *PagePool) Put(h *PageHandle, success bool) {
	p.active.Add(-1)

	if success {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}

	if h.ShouldRetire() {
		slog.Debug("page_pool: retiring tab", "id", h.ID,
			"errScore", h.errScore, "useCount", h.useCount)
		p.destroyHandle(h)

		p.mu.Lock()
		if len(p.all) < p.cfg.MinPages {
			if newH, err := p.createHandleLocked(); err == nil {
				p.mu.Unlock()
				p.idle <- newH
				return
			}
		}
		p.mu.Unlock()
		return
	}

	p.idle <- h
}

// Size returns the total number of live tabs.
func (p *PagePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// ActiveCount returns the number of checked-out tabs.
func (p *PagePool) ActiveCount() int {
	return int(p.active.Load())
}

// Stop shuts down the scaling goroutine and destroys all tabs.
func (p *PagePool) Stop() {
	close(p.stopped)

drainLoop:
	for {
		select {
		case h := <-p.idle:
			p.destroyHandle(h)
		default:
			break drainLoop
		}
	}

	p.mu.Lock()
	for id, h := range p.all {
		p.destroyer(h.Page)
		delete(p.all, id)
	}
	p.mu.Unlock()
}

func (p *PagePool) createHandle() (*PageHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createHandleLocked()
}

// createHandleLocked creates a new tab. Caller must hold p.mu.
func (p *PagePool) createHandleLocked() (*PageHandle, error) {
	page, err := p.factory()
	if err != nil {
		return nil, err
	}
	h := newPageHandle(p.nextID.Add(1), page)
	p.all[h.ID] = h
	return h, nil
}

func (p *PagePool) destroyHandle(h *PageHandle) {
	p.mu.Lock()
	delete(p.all, h.ID)
	p.mu.Unlock()
	p.destroyer(h.Page)
}

// scalingLoop periodically samples memory and adjusts pool size.
func (p *PagePool) scalingLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopped:
			return
		case <-ticker.C:
			p.scaleCheck()
		}
	}
}

func (p *PagePool) scaleCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}

	p.mu.Lock()
	totalSize := len(p.all)
	p.mu.Unlock()

	active := int(p.active.Load())
	var activeRate float64
	if totalSize > 0 {
		activeRate = float64(active) / float64(totalSize)
	}

	if memPressure > p.cfg.MemThreshold {
		shrinkCount := int(math.Ceil(float64(totalSize) * p.cfg.ScaleStep))
		for i := 0; i < shrinkCount; i++ {
			p.mu.Lock()
			if len(p.all) <= p.cfg.MinPages {
				p.mu.Unlock()
				break
			}
			p.mu.Unlock()

			select {
			case h := <-p.idle:
				slog.Debug("page_pool: shrinking, retiring tab", "id", h.ID)
				p.destroyHandle(h)
			default:
				return
			}
		}
	} else if activeRate > 0.8 {
		growCount := int(math.Ceil(float64(totalSize) * p.cfg.ScaleStep))
		for i := 0; i < growCount; i++ {
			p.mu.Lock()
			if len(p.all) >= p.cfg.HardMax {
				p.mu.Unlock()
				break
			}
			h, err := p.createHandleLocked()
			p.mu.Unlock()
			if err != nil {
				slog.Warn("page_pool: failed to grow", "error", err)
				break
			}
			slog.Debug("page_pool: grew pool", "id", h.ID)
			p.idle <- h
		}
	}
}
