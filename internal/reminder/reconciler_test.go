package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"eztodo/internal/identity"
	"eztodo/internal/model"

	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu         sync.Mutex
	seq        int
	pending    map[string]Notification
	schedules  int
	cancels    []string
	failFire   func(Notification) bool
	failCancel map[string]bool
	delay      time.Duration
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{pending: map[string]Notification{}, failCancel: map[string]bool{}}
}

func (f *fakeNotifier) Schedule(_ context.Context, n Notification) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules++
	if f.failFire != nil && f.failFire(n) {
		return "", errors.New("delivery unavailable")
	}
	f.seq++
	h := fmt.Sprintf("n-%d", f.seq)
	f.pending[h] = n
	return h, nil
}

func (f *fakeNotifier) Cancel(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, handle)
	if f.failCancel[handle] {
		return errors.New("cancel rejected")
	}
	delete(f.pending, handle)
	return nil
}

func (f *fakeNotifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules + len(f.cancels)
}

func (f *fakeNotifier) pendingFireTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, n := range f.pending {
		out = append(out, n.FireAt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

type memStateStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	loadErr error
	saveErr error
	lockErr error
	saves   int
	locks   map[string]*sync.Mutex
}

func newMemStateStore() *memStateStore {
	return &memStateStore{data: map[string][]byte{}, locks: map[string]*sync.Mutex{}}
}

func (m *memStateStore) Lock(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	if m.lockErr != nil {
		m.mu.Unlock()
		return nil, m.lockErr
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

func (m *memStateStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[key], nil
}

func (m *memStateStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = data
	return nil
}

func (m *memStateStore) state(t *testing.T, key string) State {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := decodeState(m.data[key])
	if err != nil {
		t.Fatalf("decode persisted state: %v", err)
	}
	return state
}

var baseNow = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

const testUser = 7

func userCtx() context.Context {
	return identity.WithUser(context.Background(), testUser, "user")
}

func newTestReconciler(n Notifier, s StateStore) *Reconciler {
	return NewReconciler(n, s, zap.NewNop()).WithClock(func() time.Time { return baseNow })
}

func todoDue(id string, due time.Duration) model.Todo {
	d := baseNow.Add(due)
	return model.Todo{ID: id, UserID: testUser, Text: "task " + id, DueDate: &d}
}

func mustSync(t *testing.T, r *Reconciler, todos []model.Todo) Result {
	t.Helper()
	res, err := r.Sync(userCtx(), todos)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return res
}

func TestSyncSchedulesByDistanceToDue(t *testing.T) {
	tests := []struct {
		name    string
		due     time.Duration
		want    int
		wantRec bool
	}{
		{"more than an hour out", 3 * time.Hour, 2, true},
		{"within the hour", 30 * time.Minute, 1, true},
		{"exactly one hour out", time.Hour, 1, true},
		{"due now", 0, 0, false},
		{"in the past", -2 * time.Hour, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newFakeNotifier()
			s := newMemStateStore()
			res := mustSync(t, newTestReconciler(n, s), []model.Todo{todoDue("a", tt.due)})

			if res.Scheduled != tt.want || n.schedules != tt.want {
				t.Errorf("expected %d scheduled, got result %+v / %d calls", tt.want, res, n.schedules)
			}
			rec, ok := s.state(t, StateKey(testUser))["a"]
			if ok != tt.wantRec {
				t.Fatalf("expected record present=%v, got %v", tt.wantRec, ok)
			}
			if ok && len(rec.NotificationIDs) != tt.want {
				t.Errorf("expected %d handles, got %v", tt.want, rec.NotificationIDs)
			}
		})
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	todos := []model.Todo{todoDue("a", 3*time.Hour), todoDue("b", 20*time.Minute), {ID: "c", Text: "no due"}}

	mustSync(t, r, todos)
	before := n.calls()

	res := mustSync(t, r, todos)
	if n.calls() != before {
		t.Errorf("expected zero calls on second pass, got %d", n.calls()-before)
	}
	if res.Kept != 2 || res.Scheduled != 0 || res.Canceled != 0 {
		t.Errorf("unexpected second-pass result: %+v", res)
	}
}

func TestSyncNinetyMinuteScenario(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	a := todoDue("a", 90*time.Minute)

	mustSync(t, r, []model.Todo{a})

	fires := n.pendingFireTimes()
	want := []time.Time{baseNow.Add(30 * time.Minute), baseNow.Add(90 * time.Minute)}
	if len(fires) != 2 || !fires[0].Equal(want[0]) || !fires[1].Equal(want[1]) {
		t.Fatalf("expected fire times %v, got %v", want, fires)
	}
	rec := s.state(t, StateKey(testUser))["a"]
	if len(rec.NotificationIDs) != 2 {
		t.Fatalf("expected the record to hold both handles, got %v", rec.NotificationIDs)
	}
	if rec.DueDate != FormatDueDate(*a.DueDate) || len(rec.NotificationIDs) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	a.Completed = true
	schedulesBefore := n.schedules
	res := mustSync(t, r, []model.Todo{a})

	if res.Canceled != 2 || n.schedules != schedulesBefore {
		t.Errorf("expected 2 cancels and no scheduling, got %+v", res)
	}
	if len(n.pendingFireTimes()) != 0 {
		t.Errorf("expected no pending reminders, got %v", n.pendingFireTimes())
	}
	if _, ok := s.state(t, StateKey(testUser))["a"]; ok {
		t.Error("expected record removed after completion")
	}
}

func TestSyncCancelsWhenDueDateCleared(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	a := todoDue("a", 3*time.Hour)
	mustSync(t, r, []model.Todo{a})

	a.DueDate = nil
	res := mustSync(t, r, []model.Todo{a})
	if res.Canceled != 2 || res.Scheduled != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(s.state(t, StateKey(testUser))) != 0 {
		t.Error("expected empty state")
	}
}

func TestSyncCancelsDeletedTodos(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	mustSync(t, r, []model.Todo{todoDue("a", 3*time.Hour), todoDue("b", 3*time.Hour)})

	res := mustSync(t, r, []model.Todo{todoDue("b", 3*time.Hour)})
	if res.Canceled != 2 || res.Kept != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	state := s.state(t, StateKey(testUser))
	if _, ok := state["a"]; ok {
		t.Error("expected deleted todo's record dropped")
	}
	if _, ok := state["b"]; !ok {
		t.Error("expected remaining todo's record kept")
	}
}

func TestSyncReschedulesOnDueDateChange(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	mustSync(t, r, []model.Todo{todoDue("a", 3*time.Hour)})
	old := s.state(t, StateKey(testUser))["a"].NotificationIDs

	moved := todoDue("a", 5*time.Hour)
	res := mustSync(t, r, []model.Todo{moved})
	if res.Canceled != 2 || res.Scheduled != 2 {
		t.Errorf("expected 2 cancels and 2 schedules, got %+v", res)
	}
	for _, h := range old {
		if _, still := n.pending[h]; still {
			t.Errorf("old handle %s still pending", h)
		}
	}
	rec := s.state(t, StateKey(testUser))["a"]
	if rec.DueDate != FormatDueDate(*moved.DueDate) {
		t.Errorf("expected record keyed to new due date, got %s", rec.DueDate)
	}
	fires := n.pendingFireTimes()
	if len(fires) != 2 || !fires[1].Equal(*moved.DueDate) {
		t.Errorf("unexpected pending fire times: %v", fires)
	}
}

func TestSyncTreatsEquivalentInstantsAsUnchanged(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	a := todoDue("a", 3*time.Hour)
	mustSync(t, r, []model.Todo{a})
	before := n.calls()

	local := a.DueDate.In(time.FixedZone("UTC+8", 8*3600))
	a.DueDate = &local
	mustSync(t, r, []model.Todo{a})
	if n.calls() != before {
		t.Errorf("expected zero calls for same instant in another zone, got %d", n.calls()-before)
	}
}

func TestSyncStartsEmptyOnBadState(t *testing.T) {
	t.Run("corrupt payload", func(t *testing.T) {
		n := newFakeNotifier()
		s := newMemStateStore()
		s.data[StateKey(testUser)] = []byte("{not json")

		res := mustSync(t, newTestReconciler(n, s), []model.Todo{todoDue("a", 3*time.Hour)})
		if res.Scheduled != 2 {
			t.Errorf("expected fresh scheduling, got %+v", res)
		}
		if len(s.state(t, StateKey(testUser))) != 1 {
			t.Error("expected state rewritten")
		}
	})

	t.Run("load error", func(t *testing.T) {
		n := newFakeNotifier()
		s := newMemStateStore()
		s.loadErr = errors.New("redis down")

		res := mustSync(t, newTestReconciler(n, s), []model.Todo{todoDue("a", 3*time.Hour)})
		if res.Scheduled != 2 {
			t.Errorf("expected fresh scheduling, got %+v", res)
		}
	})
}

func TestSyncSwallowsPersistFailure(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	s.saveErr = errors.New("read-only replica")

	res, err := newTestReconciler(n, s).Sync(userCtx(), []model.Todo{todoDue("a", 3*time.Hour)})
	if err != nil {
		t.Fatalf("expected persist failure to be swallowed, got %v", err)
	}
	if res.Scheduled != 2 || s.saves != 1 {
		t.Errorf("unexpected result %+v with %d saves", res, s.saves)
	}
}

func TestSyncContinuesPastFailures(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)

	n.failFire = func(x Notification) bool { return x.Title == "Task due" }
	res := mustSync(t, r, []model.Todo{todoDue("a", 3*time.Hour), todoDue("b", 4*time.Hour)})
	if res.Scheduled != 2 || res.Failed != 2 {
		t.Errorf("expected 2 scheduled and 2 failed, got %+v", res)
	}
	state := s.state(t, StateKey(testUser))
	if len(state["a"].NotificationIDs) != 1 || len(state["b"].NotificationIDs) != 1 {
		t.Errorf("expected one handle per todo, got %+v", state)
	}

	n.failFire = func(Notification) bool { return true }
	res = mustSync(t, r, []model.Todo{todoDue("c", 3*time.Hour)})
	if _, ok := s.state(t, StateKey(testUser))["c"]; ok {
		t.Error("expected no record when nothing could be scheduled")
	}
	if res.Canceled != 2 {
		t.Errorf("expected orphaned records still canceled, got %+v", res)
	}
}

func TestSyncDropsRecordEvenIfCancelFails(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	mustSync(t, r, []model.Todo{todoDue("a", 3*time.Hour)})
	for _, h := range s.state(t, StateKey(testUser))["a"].NotificationIDs {
		n.failCancel[h] = true
	}

	res := mustSync(t, r, nil)
	if res.Failed != 2 {
		t.Errorf("expected 2 failed cancels, got %+v", res)
	}
	if len(s.state(t, StateKey(testUser))) != 0 {
		t.Error("expected record dropped without retry")
	}
}

func TestSyncScopesStateByUser(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	mustSync(t, r, []model.Todo{todoDue("a", 3*time.Hour)})

	other := identity.WithUser(context.Background(), testUser+1, "user")
	res, err := r.Sync(other, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Canceled != 0 {
		t.Errorf("another user's pass must not touch this user's reminders, got %+v", res)
	}
	if len(s.state(t, StateKey(testUser))) != 1 {
		t.Error("expected first user's state untouched")
	}
}

func TestSyncRequiresIdentity(t *testing.T) {
	r := newTestReconciler(newFakeNotifier(), newMemStateStore())
	if _, err := r.Sync(context.Background(), nil); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("expected ErrNoIdentity, got %v", err)
	}
}

func TestSyncSerializesPerUser(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	r := newTestReconciler(n, s)
	todos := []model.Todo{todoDue("a", 3*time.Hour)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Sync(userCtx(), todos)
		}()
	}
	wg.Wait()

	if n.schedules != 2 {
		t.Errorf("expected overlapping passes to schedule once, got %d", n.schedules)
	}
}

func TestSyncSerializesAcrossReconcilers(t *testing.T) {
	// api 和 worker 各自持有一个 Reconciler，共享同一个状态存储
	n := newFakeNotifier()
	n.delay = 5 * time.Millisecond
	s := newMemStateStore()
	api := newTestReconciler(n, s)
	worker := newTestReconciler(n, s)
	todo := todoDue("a", 3*time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, r := range []*Reconciler{api, worker} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = r.Sync(userCtx(), []model.Todo{todo})
			}()
		}
	}
	wg.Wait()

	if len(n.pendingFireTimes()) != 2 {
		t.Fatalf("expected exactly 2 pending reminders, got %d", len(n.pendingFireTimes()))
	}
	rec := s.state(t, StateKey(testUser))["a"]
	for _, h := range rec.NotificationIDs {
		if _, ok := n.pending[h]; !ok {
			t.Errorf("persisted handle %s is not pending", h)
		}
	}

	todo.Completed = true
	mustSync(t, worker, []model.Todo{todo})
	if got := n.pendingFireTimes(); len(got) != 0 {
		t.Errorf("expected completing the todo to cancel every reminder, %d still pending", len(got))
	}
}

func TestSyncFailsWhenStateLockUnavailable(t *testing.T) {
	n := newFakeNotifier()
	s := newMemStateStore()
	s.lockErr = errors.New("redis: connection refused")
	r := newTestReconciler(n, s)

	if _, err := r.Sync(userCtx(), []model.Todo{todoDue("a", 3*time.Hour)}); !errors.Is(err, s.lockErr) {
		t.Fatalf("expected wrapped lock error, got %v", err)
	}
	if n.calls() != 0 || s.saves != 0 {
		t.Errorf("expected no calls without the lock, got calls=%d saves=%d", n.calls(), s.saves)
	}
}

func TestRecordJSONShape(t *testing.T) {
	data, err := json.Marshal(State{"a": {DueDate: "2030-06-01T15:00:00Z", NotificationIDs: []string{"x", "y"}}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":{"dueDate":"2030-06-01T15:00:00Z","notificationIds":["x","y"]}}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestPlanTexts(t *testing.T) {
	due := baseNow.Add(2 * time.Hour)
	plan := Plan("Buy milk", due)
	if len(plan) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(plan))
	}
	if plan[0].Title != "1 hour remaining" || plan[0].Body != `"Buy milk" is due in one hour.` || !plan[0].FireAt.Equal(due.Add(-time.Hour)) {
		t.Errorf("unexpected lead reminder: %+v", plan[0])
	}
	if plan[1].Title != "Task due" || plan[1].Body != `"Buy milk" has reached its due time.` || !plan[1].FireAt.Equal(due) {
		t.Errorf("unexpected due reminder: %+v", plan[1])
	}
}
