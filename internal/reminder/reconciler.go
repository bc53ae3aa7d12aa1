package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eztodo/internal/identity"
	"eztodo/internal/model"
	"eztodo/pkg/metrics"
	"eztodo/pkg/otel"
	"eztodo/pkg/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LeadTime 提前提醒的时间
const LeadTime = time.Hour

const defaultConcurrency = 8

// ErrNoIdentity context 中没有调用方身份
var ErrNoIdentity = errors.New("reminder: no caller identity")

// Notification 是交给投递端的一条提醒
type Notification struct {
	Title  string
	Body   string
	FireAt time.Time
}

// Notifier 是本地提醒投递能力，Schedule 返回不透明的 handle
type Notifier interface {
	Schedule(ctx context.Context, n Notification) (string, error)
	Cancel(ctx context.Context, handle string) error
}

// Result 汇总一次对账中的调用情况
type Result struct {
	Scheduled int `json:"scheduled"`
	Canceled  int `json:"canceled"`
	Kept      int `json:"kept"`
	Failed    int `json:"failed"`
}

func (r *Result) add(o Result) {
	r.Scheduled += o.Scheduled
	r.Canceled += o.Canceled
	r.Kept += o.Kept
	r.Failed += o.Failed
}

// Reconciler 让每个未完成且有未来截止时间的 todo 恰好对应两条挂起提醒
type Reconciler struct {
	notifier    Notifier
	store       StateStore
	logger      *zap.Logger
	now         func() time.Time
	concurrency int
	locks       *keyedMutex
}

func NewReconciler(notifier Notifier, store StateStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		notifier:    notifier,
		store:       store,
		logger:      logger,
		now:         time.Now,
		concurrency: defaultConcurrency,
		locks:       newKeyedMutex(),
	}
}

// WithClock 替换时间来源
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// WithConcurrency 设置一次对账中并发的 schedule/cancel 数量上限
func (r *Reconciler) WithConcurrency(n int) *Reconciler {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

type outcome struct {
	id     string
	record *Record
	res    Result
}

// Sync 对调用方的 todo 列表执行一次对账并持久化新状态。
// 单个 schedule/cancel 失败只记录日志，不中断本次对账；状态写入失败同样被吞掉。
func (r *Reconciler) Sync(ctx context.Context, todos []model.Todo) (Result, error) {
	userID, ok := identity.UserID(ctx)
	if !ok {
		return Result{}, ErrNoIdentity
	}
	key := StateKey(userID)

	unlock := r.locks.Lock(key)
	defer unlock()

	// api 的手动同步和 worker 的 todo.changed 可能同时处理同一用户
	release, err := r.store.Lock(ctx, key)
	if err != nil {
		r.logger.Warn("Failed to lock reminder state", zap.Int("user_id", userID), zap.Error(err))
		return Result{}, fmt.Errorf("lock reminder state: %w", err)
	}
	defer release()

	ctx, span := otel.StartSpan(ctx, "reminder.Sync")
	defer span.End()
	span.SetAttributes(
		attribute.Int("user_id", userID),
		attribute.Int("todo_count", len(todos)),
	)

	log := r.logger.With(
		zap.Int("user_id", userID),
		zap.String("trace_id", trace.FromContext(ctx)),
	)
	now := r.now()
	prev := r.load(ctx, key, log)

	current := make(map[string]model.Todo, len(todos))
	order := make([]string, 0, len(todos))
	for _, t := range todos {
		if _, seen := current[t.ID]; !seen {
			order = append(order, t.ID)
		}
		current[t.ID] = t
	}
	var orphans []string
	for id := range prev {
		if _, ok := current[id]; !ok {
			orphans = append(orphans, id)
		}
	}

	outcomes := make([]outcome, len(order)+len(orphans))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range order {
		rec, has := prev[id]
		t := current[id]
		g.Go(func() error {
			outcomes[i] = r.reconcileTodo(ctx, t, rec, has, now, log)
			return nil
		})
	}
	for j, id := range orphans {
		rec := prev[id]
		g.Go(func() error {
			o := outcome{id: id}
			o.res.add(r.cancelAll(ctx, id, rec.NotificationIDs, log))
			outcomes[len(order)+j] = o
			return nil
		})
	}
	_ = g.Wait()

	next := State{}
	var res Result
	for _, o := range outcomes {
		res.add(o.res)
		if o.record != nil {
			next[o.id] = *o.record
		}
	}

	r.persist(ctx, key, next, log)
	metrics.IncrementReminderSync()
	span.SetAttributes(
		attribute.Int("scheduled", res.Scheduled),
		attribute.Int("canceled", res.Canceled),
		attribute.Int("failed", res.Failed),
	)
	log.Info("Reminder reconciliation finished",
		zap.Int("todos", len(order)),
		zap.Int("records", len(next)),
		zap.Int("scheduled", res.Scheduled),
		zap.Int("canceled", res.Canceled),
		zap.Int("kept", res.Kept),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *Reconciler) reconcileTodo(ctx context.Context, t model.Todo, prev Record, hasPrev bool, now time.Time, log *zap.Logger) outcome {
	o := outcome{id: t.ID}

	if t.DueDate == nil || t.Completed {
		if hasPrev {
			o.res.add(r.cancelAll(ctx, t.ID, prev.NotificationIDs, log))
		}
		return o
	}

	due := FormatDueDate(*t.DueDate)
	if hasPrev && prev.DueDate == due {
		o.res.Kept = 1
		o.record = &prev
		return o
	}

	if hasPrev {
		o.res.add(r.cancelAll(ctx, t.ID, prev.NotificationIDs, log))
	}

	var handles []string
	for _, n := range Plan(t.Text, *t.DueDate) {
		if !n.FireAt.After(now) {
			continue
		}
		handle, err := r.notifier.Schedule(ctx, n)
		metrics.IncrementReminderAction("schedule", err == nil)
		if err != nil {
			o.res.Failed++
			log.Warn("Failed to schedule reminder",
				zap.String("todo_id", t.ID),
				zap.Time("fire_at", n.FireAt),
				zap.Error(err),
			)
			continue
		}
		o.res.Scheduled++
		handles = append(handles, handle)
	}

	if len(handles) > 0 {
		o.record = &Record{DueDate: due, NotificationIDs: handles}
	}
	return o
}

func (r *Reconciler) cancelAll(ctx context.Context, todoID string, handles []string, log *zap.Logger) Result {
	var res Result
	for _, h := range handles {
		err := r.notifier.Cancel(ctx, h)
		metrics.IncrementReminderAction("cancel", err == nil)
		if err != nil {
			res.Failed++
			log.Warn("Failed to cancel reminder",
				zap.String("todo_id", todoID),
				zap.String("notification_id", h),
				zap.Error(err),
			)
			continue
		}
		res.Canceled++
	}
	return res
}

func (r *Reconciler) load(ctx context.Context, key string, log *zap.Logger) State {
	data, err := r.store.Load(ctx, key)
	if err != nil {
		log.Warn("Failed to load reminder state, starting empty", zap.Error(err))
		return State{}
	}
	state, err := decodeState(data)
	if err != nil {
		log.Warn("Corrupt reminder state, starting empty", zap.Error(err))
		return State{}
	}
	return state
}

func (r *Reconciler) persist(ctx context.Context, key string, state State, log *zap.Logger) {
	data, err := json.Marshal(state)
	if err == nil {
		err = r.store.Save(ctx, key, data)
	}
	if err != nil {
		log.Warn("Failed to persist reminder state", zap.Error(err))
	}
}

// Plan 返回某个截止时间对应的两条提醒：提前一小时和到期时
func Plan(text string, due time.Time) []Notification {
	return []Notification{
		{
			Title:  "1 hour remaining",
			Body:   fmt.Sprintf(`"%s" is due in one hour.`, text),
			FireAt: due.Add(-LeadTime),
		},
		{
			Title:  "Task due",
			Body:   fmt.Sprintf(`"%s" has reached its due time.`, text),
			FireAt: due,
		},
	}
}

// FormatDueDate 把截止时间规范化为记录里保存的字符串
func FormatDueDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
