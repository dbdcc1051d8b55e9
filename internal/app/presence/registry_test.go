package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"callrelay/internal/app/calllog"
	"callrelay/internal/app/user"
	"callrelay/internal/configs"
	"callrelay/internal/pkg/errs"
)

type sentEvent struct {
	connID string
	event  string
	data   any
}

// recordingDispatcher captures every event the registry emits.
type recordingDispatcher struct {
	mu         sync.Mutex
	sent       []sentEvent
	broadcasts []sentEvent
}

func (d *recordingDispatcher) Send(connID, event string, data any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentEvent{connID: connID, event: event, data: data})
}

func (d *recordingDispatcher) Broadcast(event string, data any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcasts = append(d.broadcasts, sentEvent{event: event, data: data})
}

func (d *recordingDispatcher) to(connID, event string) []sentEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []sentEvent
	for _, e := range d.sent {
		if e.connID == connID && e.event == event {
			result = append(result, e)
		}
	}
	return result
}

type recordingRecorder struct {
	mu      sync.Mutex
	entries []calllog.Entry
}

func (r *recordingRecorder) Record(e calllog.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type fixedTokens map[string]string

func (f fixedTokens) Verify(name, token string) bool {
	return token != "" && f[name] == token
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, opts Options) (*Registry, *recordingDispatcher, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now
	if opts.StaleAfter == 0 {
		opts.StaleAfter = 5 * time.Minute
	}

	d := &recordingDispatcher{}
	return NewRegistry(d, opts), d, clock
}

func mustRegister(t *testing.T, r *Registry, name, connID string) {
	t.Helper()
	if _, err := r.Register(name, connID, ""); err != nil {
		t.Fatalf("Register(%q, %q): %v", name, connID, err)
	}
}

func TestRegisterValidatesName(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})

	tests := []struct {
		name    string
		wantErr int
	}{
		{"al", errs.ErrInvalidName},
		{"alice_1", errs.ErrInvalidName},
		{"Alice123", 0},
	}

	for i, tt := range tests {
		_, err := r.Register(tt.name, fmt.Sprintf("conn-%d", i), "")
		if tt.wantErr == 0 && err != nil {
			t.Errorf("Register(%q) = %v, want success", tt.name, err)
		}
		if tt.wantErr != 0 && (err == nil || err.Code != tt.wantErr) {
			t.Errorf("Register(%q) = %v, want code %d", tt.name, err, tt.wantErr)
		}
	}
}

func TestRegisterStrictRejectsTakenName(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{Policy: configs.PolicyStrict})
	mustRegister(t, r, "alice", "c1")

	_, err := r.Register("alice", "c2", "")
	if err == nil || err.Code != errs.ErrNameTaken {
		t.Fatalf("second Register = %v, want NameTaken", err)
	}

	u, ok := r.LookupByName("alice")
	if !ok || u.ConnectionID != "c1" {
		t.Fatalf("first session disturbed: %+v, %v", u, ok)
	}
	if _, ok := r.LookupByConnection("c2"); ok {
		t.Errorf("c2 should not be bound")
	}
}

func TestRegisterSameConnectionIsIdempotent(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustRegister(t, r, "alice", "c1")
	mustRegister(t, r, "alice", "c1")

	if names := r.ListNames(); len(names) != 1 {
		t.Fatalf("ListNames = %v, want one entry", names)
	}
}

func TestRegisterNewNameReleasesPrevious(t *testing.T) {
	r, d, _ := newTestRegistry(t, Options{})
	mustRegister(t, r, "alice", "c1")
	mustRegister(t, r, "bob", "c2")
	if err := r.RequestCall("alice", "bob", 1); err != nil {
		t.Fatalf("RequestCall: %v", err)
	}

	reg, err := r.Register("alicia", "c1", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Released != "alice" {
		t.Errorf("Released = %q, want alice", reg.Released)
	}

	if _, ok := r.LookupByName("alice"); ok {
		t.Errorf("old name still registered")
	}
	if u, _ := r.LookupByConnection("c1"); u.Name != "alicia" {
		t.Errorf("c1 bound to %q, want alicia", u.Name)
	}
	if bob, _ := r.LookupByName("bob"); bob.State != user.StateIdle {
		t.Errorf("bob state = %s, want idle", bob.State)
	}
	if got := len(d.to("c2", EventEndCall)); got != 1 {
		t.Errorf("bob got %d end_call events, want 1", got)
	}
}

func TestRegisterReplaceRebindsStaleHolder(t *testing.T) {
	r, d, clock := newTestRegistry(t, Options{Policy: configs.PolicyReplace, StaleAfter: time.Minute})
	mustRegister(t, r, "alice", "c1")
	mustRegister(t, r, "bob", "c2")
	if err := r.RequestCall("bob", "alice", 1); err != nil {
		t.Fatalf("RequestCall: %v", err)
	}

	if _, err := r.Register("alice", "c3", ""); err == nil || err.Code != errs.ErrNameTaken {
		t.Fatalf("live holder displaced: %v", err)
	}

	clock.Advance(2 * time.Minute)
	reg, err := r.Register("alice", "c3", "")
	if err != nil {
		t.Fatalf("Register over stale holder: %v", err)
	}
	if reg.Displaced != "c1" {
		t.Errorf("Displaced = %q, want c1", reg.Displaced)
	}

	u, _ := r.LookupByName("alice")
	if u.ConnectionID != "c3" || u.State != user.StateIdle {
		t.Errorf("alice = %+v", u)
	}
	if _, ok := r.LookupByConnection("c1"); ok {
		t.Errorf("c1 still bound")
	}
	if got := len(d.to("c2", EventEndCall)); got != 1 {
		t.Errorf("bob got %d end_call events, want 1", got)
	}
	if names := r.ListNames(); len(names) != 2 {
		t.Errorf("ListNames = %v", names)
	}
}

func TestRegisterReplaceWithResumeToken(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{
		Policy: configs.PolicyReplace,
		Tokens: fixedTokens{"alice": "secret-token"},
	})
	mustRegister(t, r, "alice", "c1")

	if _, err := r.Register("alice", "c2", "wrong"); err == nil {
		t.Fatalf("wrong token accepted")
	}

	reg, err := r.Register("alice", "c2", "secret-token")
	if err != nil {
		t.Fatalf("Register with token: %v", err)
	}
	if reg.Displaced != "c1" {
		t.Errorf("Displaced = %q, want c1", reg.Displaced)
	}
}

func TestUnregisterRemovesUser(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustRegister(t, r, "alice", "c1")
	mustRegister(t, r, "bob", "c2")

	name, ok := r.Unregister("c1")
	if !ok || name != "alice" {
		t.Fatalf("Unregister = %q, %v", name, ok)
	}
	if _, ok := r.LookupByName("alice"); ok {
		t.Errorf("alice still present")
	}
	if names := r.ListNames(); len(names) != 1 || names[0] != "bob" {
		t.Errorf("ListNames = %v, want [bob]", names)
	}

	if _, ok := r.Unregister("c1"); ok {
		t.Errorf("second Unregister reported a removal")
	}
	if _, ok := r.Unregister("never"); ok {
		t.Errorf("unknown connection reported a removal")
	}
}

func TestListNamesKeepsRegistrationOrder(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	for i, name := range []string{"carol", "alice", "bob"} {
		mustRegister(t, r, name, fmt.Sprintf("c%d", i))
	}
	r.Unregister("c1")
	mustRegister(t, r, "dave", "c9")

	want := []string{"carol", "bob", "dave"}
	got := r.ListNames()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ListNames = %v, want %v", got, want)
	}
}

func TestBroadcastNamesSendsBothEvents(t *testing.T) {
	r, d, _ := newTestRegistry(t, Options{})
	mustRegister(t, r, "alice", "c1")
	r.BroadcastNames()

	if len(d.broadcasts) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(d.broadcasts))
	}
	if d.broadcasts[0].event != EventUsersUpdated || d.broadcasts[1].event != EventUpdateUsers {
		t.Errorf("unexpected events: %+v", d.broadcasts)
	}
	if p, ok := d.broadcasts[0].data.(UsersPayload); !ok || len(p.Users) != 1 || p.Users[0] != "alice" {
		t.Errorf("users_updated data = %#v", d.broadcasts[0].data)
	}
}

func TestTouchAndEvictStale(t *testing.T) {
	r, d, clock := newTestRegistry(t, Options{})
	mustRegister(t, r, "alice", "c1")
	mustRegister(t, r, "bob", "c2")
	mustRegister(t, r, "carol", "c3")

	if err := r.RequestCall("alice", "bob", 1); err != nil {
		t.Fatalf("RequestCall: %v", err)
	}
	if err := r.AcceptCall("bob", "alice", 2); err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}

	clock.Advance(3 * time.Minute)
	r.Touch("c2")
	r.Touch("c3")
	r.Touch("unknown")
	clock.Advance(3 * time.Minute)

	evicted := r.EvictStale(5 * time.Minute)
	if len(evicted) != 1 || evicted[0].Name != "alice" || evicted[0].ConnectionID != "c1" {
		t.Fatalf("evicted = %+v, want alice/c1", evicted)
	}

	if _, ok := r.LookupByName("alice"); ok {
		t.Errorf("alice still registered")
	}
	bob, _ := r.LookupByName("bob")
	if bob.State != user.StateIdle || bob.Partner != "" {
		t.Errorf("bob = %+v, want idle", bob)
	}
	ends := d.to("c2", EventEndCall)
	if len(ends) != 1 {
		t.Fatalf("bob got %d end_call events, want 1", len(ends))
	}
	if p := ends[0].data.(EndCallPayload); p.From != "alice" || p.Reason != calllog.ReasonEvicted {
		t.Errorf("end_call payload = %+v", p)
	}

	if again := r.EvictStale(5 * time.Minute); len(again) != 0 {
		t.Errorf("second sweep evicted %+v", again)
	}
}

func TestConcurrentRegistrationKeepsNamesUnique(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Register("alice", fmt.Sprintf("c%d", i), ""); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("%d connections won the name, want 1", winners)
	}
	if names := r.ListNames(); len(names) != 1 {
		t.Errorf("ListNames = %v", names)
	}
}
