package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"uhf-telemetry/internal/acquisition"
	"uhf-telemetry/internal/monitor"
)

// Poller 每次迭代产生一个样本
type Poller interface {
	PollOnce() acquisition.Sample
}

// Publisher 按时间闸门发布样本
type Publisher interface {
	MaybePublish(ctx context.Context, now time.Time, sample acquisition.Sample) (bool, error)
}

type Options struct {
	// Pause 每次迭代结束后的等待
	Pause time.Duration
}

// Runner 单协程的采集发布循环
type Runner struct {
	poller    Poller
	publisher Publisher
	status    *monitor.Status
	opts      Options
	log       *logrus.Logger
	now       func() time.Time
	closers   []io.Closer
}

func NewRunner(poller Poller, publisher Publisher, status *monitor.Status, opts Options, log *logrus.Logger) *Runner {
	if status == nil {
		status = monitor.NewStatus()
	}
	return &Runner{
		poller:    poller,
		publisher: publisher,
		status:    status,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// OnShutdown 注册退出时需要关闭的资源，按注册的逆序关闭
func (r *Runner) OnShutdown(c io.Closer) {
	r.closers = append(r.closers, c)
}

// Step 执行一次采集，并在闸门打开时发布
func (r *Runner) Step(ctx context.Context) (bool, error) {
	start := r.now()
	sample := r.poller.PollOnce()
	r.status.RecordPoll(sample, r.now().Sub(start))

	// 闸门使用采集结束后的时间
	now := r.now()
	published, err := r.publisher.MaybePublish(ctx, now, sample)
	if published {
		r.status.RecordPublish(now, err)
	}
	return published, err
}

// Run 循环执行 Step 直到 ctx 取消，发布失败只记录日志
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("采集循环启动")
	for {
		if err := ctx.Err(); err != nil {
			r.log.Info("采集循环退出")
			return nil
		}

		if _, err := r.Step(ctx); err != nil {
			r.log.Warnf("发布失败: %v", err)
		}

		if r.opts.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.opts.Pause):
			}
		}
	}
}

// Start 运行循环，收到 SIGINT/SIGTERM 时停止并关闭资源
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 优雅退出处理
	go r.handleShutdown(ctx, cancel)

	err := r.Run(ctx)
	r.close()
	return err
}

func (r *Runner) handleShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		// 正在进行的模块读取不可中断，本次迭代结束后退出
		r.log.Infof("收到信号: %v, 开始优雅关闭...", sig)
		cancel()
	case <-ctx.Done():
	}
}

func (r *Runner) close() {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.log.Errorf("关闭资源失败: %v", err)
	}
	r.log.Info("已关闭")
}
