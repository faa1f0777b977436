package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// failingStore rejects every operation.
type failingStore struct {
	loads, saves atomic.Int32
}

var errStoreDown = errors.New("store down")

func (f *failingStore) Load(context.Context, Service, string) ([]byte, error) {
	f.loads.Add(1)
	return nil, errStoreDown
}

func (f *failingStore) Save(context.Context, Service, string, []byte, time.Duration) error {
	f.saves.Add(1)
	return errStoreDown
}

func (f *failingStore) Remove(context.Context, Service, string) error { return errStoreDown }
func (f *failingStore) Purge(context.Context, Service) error          { return errStoreDown }

func TestWrap_ReadThrough(t *testing.T) {
	hs, mr := newTestStore(t)
	ctx := context.Background()

	var calls int
	get := Wrap(hs, Event, "average-scores", func(ctx context.Context) (map[int]float64, error) {
		calls++
		return map[int]float64{1: 55.2, 2: 48}, nil
	})

	for i := 0; i < 2; i++ {
		v, err := get(ctx)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if v[1] != 55.2 || v[2] != 48 {
			t.Fatalf("call %d returned %v", i, v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected producer to run once, ran %d times", calls)
	}
	if mr.HGet("cache:event", "average-scores") == "" {
		t.Fatal("result should be stored in the service hash")
	}
}

func TestWrap_ProducerErrorPropagates(t *testing.T) {
	hs, mr := newTestStore(t)
	errUpstream := errors.New("event deadlines not found")

	var calls int
	get := Wrap(hs, Event, "current-with-deadline", func(ctx context.Context) (int, error) {
		calls++
		return 0, errUpstream
	})

	for i := 0; i < 2; i++ {
		if _, err := get(context.Background()); err != errUpstream {
			t.Fatalf("expected producer error unmodified, got %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("failed results must not be cached; producer ran %d times", calls)
	}
	if mr.Exists("cache:event") {
		t.Fatal("nothing should be written on producer error")
	}
}

func TestWrap_NilResultNotCached(t *testing.T) {
	hs, mr := newTestStore(t)

	var calls int
	get := Wrap(hs, Entry, "info:1", func(ctx context.Context) (*scores, error) {
		calls++
		return nil, nil
	})

	get(context.Background())
	get(context.Background())

	if calls != 2 {
		t.Fatalf("nil results must not be cached; producer ran %d times", calls)
	}
	if mr.Exists("cache:entry") {
		t.Fatal("nil result should not be written")
	}
}

func TestWrap_FailOpen(t *testing.T) {
	st := &failingStore{}

	var calls int
	get := Wrap(st, Fixture, "fixtures:1", func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"ARS v CHE"}, nil
	})

	for i := 0; i < 2; i++ {
		v, err := get(context.Background())
		if err != nil {
			t.Fatalf("cache failure leaked to caller: %v", err)
		}
		if len(v) != 1 || v[0] != "ARS v CHE" {
			t.Fatalf("unexpected result %v", v)
		}
	}
	if calls != 2 {
		t.Fatalf("expected producer on every call while cache is down, got %d", calls)
	}
	if st.loads.Load() != 2 || st.saves.Load() != 2 {
		t.Fatalf("expected 2 loads and 2 saves, got %d and %d", st.loads.Load(), st.saves.Load())
	}
}

func TestWrap_FailOpenRedisOutage(t *testing.T) {
	hs, mr := newTestStore(t)
	mr.SetError("ERR connection refused")

	get := Wrap(hs, Event, "current-with-deadline", func(ctx context.Context) (int, error) {
		return 7, nil
	})

	v, err := get(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("expected 7, nil during outage; got %v, %v", v, err)
	}
}

func TestWrap_TTLOption(t *testing.T) {
	hs, mr := newTestStore(t)

	get := Wrap(hs, Team, "names", func(ctx context.Context) (string, error) {
		return "ok", nil
	}, WithTTL(45*time.Second))

	if _, err := get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := mr.TTL("cache:team"); got != 45*time.Second {
		t.Fatalf("expected 45s TTL, got %v", got)
	}
}

func TestWrapKey(t *testing.T) {
	hs, mr := newTestStore(t)
	ctx := context.Background()

	calls := map[int]int{}
	get := WrapKey(hs, Fixture, func(event int) string {
		return "fixtures:" + strconv.Itoa(event)
	}, func(ctx context.Context, event int) (int, error) {
		calls[event]++
		return event * 10, nil
	})

	for _, event := range []int{1, 2, 1, 2, 1} {
		v, err := get(ctx, event)
		if err != nil || v != event*10 {
			t.Fatalf("get(%d) = %v, %v", event, v, err)
		}
	}
	if calls[1] != 1 || calls[2] != 1 {
		t.Fatalf("expected one producer call per key, got %v", calls)
	}
	if mr.HGet("cache:fixture", "fixtures:1") != "10" || mr.HGet("cache:fixture", "fixtures:2") != "20" {
		t.Fatal("each key should be a field of the fixture hash")
	}
}

func TestWrap_SingleFlight(t *testing.T) {
	hs, _ := newTestStore(t)

	var calls atomic.Int32
	release := make(chan struct{})
	get := Wrap(hs, Event, "current-with-deadline", func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 3, nil
	}, WithSingleFlight(true))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := get(context.Background())
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected concurrent misses to share one producer call, got %d", n)
	}
	for i, v := range results {
		if v != 3 {
			t.Fatalf("caller %d got %d", i, v)
		}
	}
}

func TestWrap_SingleFlightLeaderCancelled(t *testing.T) {
	hs, _ := newTestStore(t)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	get := Wrap(hs, Event, "average-scores", func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return 54, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, WithSingleFlight(true))

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := get(leaderCtx)
		leaderErr <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	follower := make(chan result, 1)
	go func() {
		v, err := get(context.Background())
		follower <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader should see its own cancellation, got %v", err)
	}

	close(release)
	res := <-follower
	if res.err != nil || res.v != 54 {
		t.Fatalf("follower = %d, %v; want 54, nil", res.v, res.err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one producer call, got %d", n)
	}
}
