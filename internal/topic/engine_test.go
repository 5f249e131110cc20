package topic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/chat"
	"github.com/caioluan/tabchat/internal/classify"
	"github.com/caioluan/tabchat/internal/docstore"
)

type fakeTabs struct {
	mu      sync.Mutex
	tabs    map[string]*chat.Tab
	renames []string
}

func (f *fakeTabs) Get(_ context.Context, tabID string) (*chat.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tabs[tabID]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTabs) Rename(_ context.Context, tabID, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tabs[tabID]
	if !ok {
		return docstore.ErrNotFound
	}
	t.Name = newName
	f.renames = append(f.renames, tabID+"="+newName)
	return nil
}

func (f *fakeTabs) renameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.renames)
}

type fakeMessages struct {
	msgs map[string][]*chat.Message
}

func (f *fakeMessages) List(_ context.Context, tabID string, _ int) ([]*chat.Message, error) {
	return f.msgs[tabID], nil
}

type fakeClassifier struct {
	mu    sync.Mutex
	out   string
	err   error
	calls int
}

func (f *fakeClassifier) Complete(_ context.Context, _ string, _ classify.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func textMessages(tabID string, bodies ...string) []*chat.Message {
	msgs := make([]*chat.Message, len(bodies))
	for i, b := range bodies {
		msgs[i] = &chat.Message{
			ID:      b,
			TabID:   tabID,
			Type:    chat.MessageText,
			Content: b,
			Order:   int64(i + 1),
		}
	}
	return msgs
}

func testEngine(tabs *fakeTabs, msgs *fakeMessages, cl classify.Classifier) *Engine {
	return NewEngine(tabs, msgs, cl, bus.New(), zap.NewNop(), Config{})
}

func TestNotEligibleBelowThreshold(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "planning the garden", "tomatoes or peppers", "raised beds", "soil delivery"),
	}}
	cl := &fakeClassifier{out: "garden planning"}
	e := testEngine(tabs, msgs, cl)

	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if tabs.renameCount() != 0 {
		t.Error("tab renamed below eligibility threshold")
	}
	if cl.callCount() != 0 {
		t.Error("classifier invoked below eligibility threshold")
	}
	if e.State("t1") != Unanalyzed {
		t.Errorf("state = %s, want Unanalyzed (eligible again after next send)", e.State("t1"))
	}
}

func TestRenamesExactlyOnce(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "one", "two", "three", "four", "five"),
	}}
	cl := &fakeClassifier{out: "Counting Practice"}
	e := testEngine(tabs, msgs, cl)

	for i := 0; i < 5; i++ {
		if err := e.Detect(context.Background(), "t1"); err != nil {
			t.Fatal(err)
		}
	}

	if got := tabs.renameCount(); got != 1 {
		t.Errorf("renames = %d, want exactly 1", got)
	}
	if cl.callCount() != 1 {
		t.Errorf("classifier calls = %d, want 1", cl.callCount())
	}
	if e.State("t1") != Renamed {
		t.Errorf("state = %s, want Renamed", e.State("t1"))
	}
	if tabs.tabs["t1"].Name != "counting practice" {
		t.Errorf("name = %q, want lowercased classifier output", tabs.tabs["t1"].Name)
	}
}

func TestCustomNameSkippedWithoutClassifier(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Weekend Plans"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "one", "two", "three", "four", "five"),
	}}
	cl := &fakeClassifier{out: "should never run"}
	e := testEngine(tabs, msgs, cl)

	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if cl.callCount() != 0 {
		t.Error("classifier invoked for custom-named tab")
	}
	if e.State("t1") != SkippedCustomName {
		t.Errorf("state = %s, want SkippedCustomName", e.State("t1"))
	}
	if tabs.renameCount() != 0 {
		t.Error("custom-named tab renamed")
	}
}

func TestClassifierFailureFallsBack(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Tab 2"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1",
			"budget review today",
			"budget numbers look fine",
			"budget approved then",
			"quarterly planning next",
			"quarterly targets set"),
	}}
	cl := &fakeClassifier{err: classify.ErrUnavailable}
	e := testEngine(tabs, msgs, cl)

	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if e.State("t1") != Renamed {
		t.Fatalf("state = %s, want Renamed via fallback", e.State("t1"))
	}
	name := tabs.tabs["t1"].Name
	if name != "budget quarterly review" {
		t.Errorf("fallback name = %q, want %q", name, "budget quarterly review")
	}
}

func TestNoClassifierUsesFallback(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 3"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1",
			"kitchen remodel ideas",
			"kitchen cabinets first",
			"countertops later",
			"backsplash tiles",
			"appliances last"),
	}}
	e := testEngine(tabs, msgs, nil)

	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if e.State("t1") != Renamed {
		t.Fatalf("state = %s, want Renamed", e.State("t1"))
	}
	if tabs.renameCount() != 1 {
		t.Errorf("renames = %d, want 1", tabs.renameCount())
	}
}

func TestNoFitWhenNothingExtractable(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "ok", "ok ok", "so so", "a b c", "it is"),
	}}
	e := testEngine(tabs, msgs, nil)

	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if e.State("t1") != SkippedNoFit {
		t.Errorf("state = %s, want SkippedNoFit", e.State("t1"))
	}
	if tabs.renameCount() != 0 {
		t.Error("tab renamed with no extractable subject")
	}
}

func TestDeletedAndNonTextMessagesIgnored(t *testing.T) {
	live := textMessages("t1", "one", "two", "three", "four")
	deleted := &chat.Message{TabID: "t1", Type: chat.MessageText, Content: "five", Deleted: true}
	image := &chat.Message{TabID: "t1", Type: chat.MessageImage, MediaURL: "http://x/img"}
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": append(live, deleted, image),
	}}
	cl := &fakeClassifier{out: "anything"}
	e := testEngine(tabs, msgs, cl)

	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	// Only 4 candidates survive the filters, so the tab is not eligible.
	if cl.callCount() != 0 {
		t.Error("classifier invoked with deleted/non-text messages counted")
	}
	if tabs.renameCount() != 0 {
		t.Error("tab renamed with insufficient candidates")
	}
}

func TestManualDetectBypassesCache(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "one", "two", "three", "four", "five"),
	}}
	cl := &fakeClassifier{err: errors.New("boom")}
	e := testEngine(tabs, msgs, cl)

	// First run falls back; fallback extracts nothing useful from
	// these bodies except short tokens, so it renames via frequencies.
	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	firstCalls := cl.callCount()
	if firstCalls != 1 {
		t.Fatalf("classifier calls = %d, want 1", firstCalls)
	}

	// Terminal state: plain Detect is a no-op.
	if err := e.Detect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if cl.callCount() != firstCalls {
		t.Error("Detect re-ran a terminal tab")
	}

	// Manual detection clears the cache; the tab now has a custom name
	// (from the first rename), so it lands in SkippedCustomName.
	if err := e.ManualDetect(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if e.State("t1") != SkippedCustomName {
		t.Errorf("state = %s, want SkippedCustomName after manual re-run", e.State("t1"))
	}
}

type blockingClassifier struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingClassifier) Complete(_ context.Context, _ string, _ classify.Options) (string, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return "first pass", nil
}

func TestManualDetectDuringInFlightRun(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "one", "two", "three", "four", "five"),
	}}
	cl := &blockingClassifier{entered: make(chan struct{}), release: make(chan struct{})}
	e := testEngine(tabs, msgs, cl)

	auto := make(chan error, 1)
	go func() { auto <- e.Detect(context.Background(), "t1") }()
	<-cl.entered

	// The automatic pass is parked inside the classifier. A manual detect
	// issued now must not be satisfied by merely joining it; after the
	// automatic pass renames the tab, the manual re-run sees the custom
	// name and records the skip.
	manual := make(chan error, 1)
	go func() { manual <- e.ManualDetect(context.Background(), "t1") }()

	time.Sleep(20 * time.Millisecond)
	close(cl.release)

	if err := <-auto; err != nil {
		t.Fatal(err)
	}
	if err := <-manual; err != nil {
		t.Fatal(err)
	}
	if e.State("t1") != SkippedCustomName {
		t.Errorf("state = %s, want SkippedCustomName from the manual re-run", e.State("t1"))
	}
	if got := tabs.renameCount(); got != 1 {
		t.Errorf("renames = %d, want 1", got)
	}
}

func TestConcurrentTriggersRenameOnce(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "one", "two", "three", "four", "five"),
	}}
	cl := &fakeClassifier{out: "parallel sends"}
	e := testEngine(tabs, msgs, cl)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Detect(context.Background(), "t1")
		}()
	}
	wg.Wait()

	if got := tabs.renameCount(); got != 1 {
		t.Errorf("renames = %d, want exactly 1 under concurrent triggers", got)
	}
}

func TestEngineReactsToBusEvents(t *testing.T) {
	tabs := &fakeTabs{tabs: map[string]*chat.Tab{"t1": {ID: "t1", Name: "Topic 1"}}}
	msgs := &fakeMessages{msgs: map[string][]*chat.Message{
		"t1": textMessages("t1", "one", "two", "three", "four", "five"),
	}}
	b := bus.New()
	e := NewEngine(tabs, msgs, &fakeClassifier{out: "from the bus"}, b, zap.NewNop(), Config{})
	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{
		Kind:      bus.KindMessageSent,
		Timestamp: time.Now(),
		Payload:   bus.MessageSent{TabID: "t1", MessageID: "m5"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tabs.renameCount() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for bus-triggered rename")
}

func TestIsDefaultName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Topic 1", true},
		{"topic 12", true},
		{"Tab 3", true},
		{"TAB 7", true},
		{" Topic 2 ", true},
		{"Topic", false},
		{"Topic one", false},
		{"Weekend Plans", false},
		{"General", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDefaultName(tt.name); got != tt.want {
			t.Errorf("IsDefaultName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
