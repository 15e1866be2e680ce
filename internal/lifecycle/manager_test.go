package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/legacy-use/gateway/internal/cache"
	"github.com/legacy-use/gateway/internal/model"
	"github.com/legacy-use/gateway/internal/orchestrator"
	"github.com/legacy-use/gateway/internal/pool"
)

type fakeAdapter struct {
	mu        sync.Mutex
	workloads []model.Workload
	healthy   map[string]bool
}

func (f *fakeAdapter) ListContainers(ctx context.Context, labelFilters map[string]string) []model.Workload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Workload, len(f.workloads))
	copy(out, f.workloads)
	return out
}

func (f *fakeAdapter) GetContainer(ctx context.Context, id string) (model.Workload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workloads {
		if w.ID == id {
			return w, true
		}
	}
	return model.Workload{}, false
}

func (f *fakeAdapter) ScaleService(ctx context.Context, serviceName string, replicas int) bool { return true }

func (f *fakeAdapter) CheckHealth(ctx context.Context, id, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy[id]
}

var _ orchestrator.Adapter = (*fakeAdapter)(nil)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	targets  map[string]*model.Target
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*model.Session{}, targets: map[string]*model.Target{}}
}

func (s *fakeStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errNotFound
	}
	copySess := *sess
	return &copySess, nil
}

func (s *fakeStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, errNotFound
	}
	return t, nil
}

func (s *fakeStore) CreateSession(ctx context.Context, id, targetID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &model.Session{ID: id, TargetID: targetID, State: model.StateInitializing}
	s.sessions[id] = sess
	copySess := *sess
	return &copySess, nil
}

func (s *fakeStore) UpdateSessionState(ctx context.Context, id string, state model.SessionState, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errNotFound
	}
	sess.State = state
	sess.ErrorMessage = errMsg
	return nil
}

func (s *fakeStore) SetNetworkCoordinates(ctx context.Context, id, containerID, containerIP string, vncPort, novncPort int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errNotFound
	}
	sess.ContainerID = containerID
	sess.ContainerIP = containerIP
	sess.VNCPort = vncPort
	sess.NoVNCPort = novncPort
	return nil
}

func (s *fakeStore) ClearNetworkCoordinates(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errNotFound
	}
	sess.ContainerID, sess.ContainerIP, sess.VNCPort, sess.NoVNCPort = "", "", 0, 0
	return nil
}

func (s *fakeStore) state(id string) model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].State
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

const errNotFound = stubErr("not found")

func testPool(t *testing.T, adapter orchestrator.Adapter) *pool.Pool {
	t.Helper()
	names, err := orchestrator.LoadServiceNameTable("")
	if err != nil {
		t.Fatalf("load service names: %v", err)
	}
	c, err := cache.New(cache.Config{Enabled: false})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return pool.New(adapter, c, names)
}

func waitForState(t *testing.T, store *fakeStore, id string, want model.SessionState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if store.state(id) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached state %s (stuck at %s)", id, want, store.state(id))
}

func TestCreateSessionDirectGoesReadyWithoutPool(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{ID: "t1", Type: "wine", ConnectionType: model.ConnectionDirect, DirectHost: "10.0.0.5", DirectPort: 5901}
	adapter := &fakeAdapter{healthy: map[string]bool{}}
	m := New(store, testPool(t, adapter), adapter, nil)

	sess, err := m.CreateSession(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitForState(t, store, sess.ID, model.StateReady, time.Second)

	final, _ := store.GetSession(context.Background(), sess.ID)
	if final.ContainerIP != "10.0.0.5" || final.VNCPort != 5901 {
		t.Fatalf("expected direct coordinates preserved, got %+v", final)
	}
}

func TestCreateSessionPoolAllocatesAndWaitsHealthy(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{ID: "t1", Type: "wine", ConnectionType: model.ConnectionPool, DefaultVNCPort: 5900}
	adapter := &fakeAdapter{
		workloads: []model.Workload{{ID: "W1", TargetType: "wine", Scalable: true, Status: model.WorkloadRunning, IP: "10.1.1.1"}},
		healthy:   map[string]bool{"W1": true},
	}
	m := New(store, testPool(t, adapter), adapter, nil)

	sess, err := m.CreateSession(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitForState(t, store, sess.ID, model.StateReady, time.Second)

	final, _ := store.GetSession(context.Background(), sess.ID)
	if final.ContainerID != "W1" || final.ContainerIP != "10.1.1.1" {
		t.Fatalf("expected W1 coordinates, got %+v", final)
	}
}

func TestCreateSessionNoCapacityGoesError(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{ID: "t1", Type: "wine", ConnectionType: model.ConnectionPool}
	adapter := &fakeAdapter{} // no workloads at all
	m := New(store, testPool(t, adapter), adapter, nil)
	m.allocateRetries = 1
	m.allocateBackoffMin = 10 * time.Millisecond
	m.allocateBackoffMax = 10 * time.Millisecond

	sess, err := m.CreateSession(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitForState(t, store, sess.ID, model.StateError, 2*time.Second)
}

func TestDestroySessionReleasesAndClearsCoordinates(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{ID: "t1", Type: "wine", ConnectionType: model.ConnectionPool}
	adapter := &fakeAdapter{
		workloads: []model.Workload{{ID: "W1", TargetType: "wine", Scalable: true, Status: model.WorkloadRunning, IP: "10.1.1.1"}},
		healthy:   map[string]bool{"W1": true},
	}
	p := testPool(t, adapter)
	m := New(store, p, adapter, nil)

	sess, _ := m.CreateSession(context.Background(), "t1")
	waitForState(t, store, sess.ID, model.StateReady, time.Second)

	if err := m.DestroySession(context.Background(), sess.ID); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}

	final, _ := store.GetSession(context.Background(), sess.ID)
	if final.State != model.StateDestroyed {
		t.Fatalf("expected destroyed, got %s", final.State)
	}
	if final.ContainerIP != "" || final.ContainerID != "" {
		t.Fatalf("expected coordinates cleared, got %+v", final)
	}
	if _, ok := p.GetForSession(context.Background(), sess.ID); ok {
		t.Fatal("expected pool allocation released")
	}
}
