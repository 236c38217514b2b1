package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultWorkerCount はデフォルトの取り込みワーカー数（I/O バウンド）
	DefaultWorkerCount = 4
	// DefaultQueueSize はデフォルトのジョブキュー長
	DefaultQueueSize = 64
)

// Job はバックグラウンド取り込みの1単位を表す。
// Path の一時ファイルを参照し、処理完了時に永続レコードが更新される。
type Job struct {
	Document *Document
	Path     string
}

// Dispatcher はアップロード応答をブロックしないための取り込みキュー。
// 同一内容での再投入がリトライ経路になるため、ジョブのキャンセルは
// 提供しない。
type Dispatcher struct {
	service *IngestService
	jobs    chan Job
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DispatcherConfig はディスパッチャの設定
type DispatcherConfig struct {
	WorkerCount int // ワーカー数
	QueueSize   int // キュー長
}

// DefaultDispatcherConfig はデフォルトのディスパッチャ設定を返す
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		WorkerCount: DefaultWorkerCount,
		QueueSize:   DefaultQueueSize,
	}
}

// NewDispatcher はワーカーを起動済みのDispatcherを作成する。
// ctx のキャンセルは実行中ジョブに伝播する。
func NewDispatcher(ctx context.Context, service *IngestService, cfg *DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg == nil {
		cfg = DefaultDispatcherConfig()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		service: service,
		jobs:    make(chan Job, cfg.QueueSize),
		logger:  logger,
	}

	d.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go func() {
			defer d.wg.Done()
			d.worker(ctx)
		}()
	}

	return d
}

// Enqueue はジョブをキューへ投入する。停止済みの場合は ErrDispatcherClosed を返す。
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.jobs <- job
	return nil
}

// Close は投入を締め切り、実行中・キュー内の全ジョブの完了を待つ
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	for job := range d.jobs {
		d.run(ctx, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("ingest job panicked",
				"documentID", jobID(job), "panic", r)
		}
	}()

	if _, err := d.service.ProcessFile(ctx, job.Document, job.Path); err != nil {
		d.logger.Error("ingest job failed",
			"documentID", jobID(job),
			"filename", job.Document.Filename,
			"error", err,
		)
	}
}

func jobID(job Job) string {
	if job.Document == nil {
		return uuid.Nil.String()
	}
	return job.Document.ID.String()
}
