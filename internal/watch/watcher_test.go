package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type batches struct {
	mu  sync.Mutex
	got [][]Event
}

func (b *batches) add(events []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, events)
}

func (b *batches) all() [][]Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]Event(nil), b.got...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFileWatcher_DetectsChanges(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "textures")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	file := filepath.Join(sub, "wood.png")
	if err := os.WriteFile(file, []byte("v1"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	var got batches
	watcher, err := NewFileWatcher(root, Options{Debounce: 50 * time.Millisecond, Patterns: []string{"*.png"}}, got.add)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	if len(watcher.WatchList()) != 2 {
		t.Fatalf("Expected root and textures to be watched, got %v", watcher.WatchList())
	}

	// a burst of writes arrives as one batch
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(file, []byte{byte(i)}, 0644); err != nil {
			t.Fatalf("Failed to modify file: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	waitFor(t, func() bool { return len(got.all()) > 0 })
	first := got.all()[0]
	if len(first) != 1 || first[0].Path != file || first[0].Op != Changed {
		t.Errorf("Expected one change for %s, got %v", file, first)
	}

	if err := os.Remove(file); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	waitFor(t, func() bool {
		for _, batch := range got.all() {
			for _, ev := range batch {
				if ev.Path == file && ev.Op == Removed {
					return true
				}
			}
		}
		return false
	})
}

func TestFileWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()

	var got batches
	watcher, err := NewFileWatcher(root, Options{Debounce: 30 * time.Millisecond}, got.add)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()
	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	dir := filepath.Join(root, "models")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	waitFor(t, func() bool { return len(watcher.WatchList()) == 2 })

	file := filepath.Join(dir, "rock.mdl")
	if err := os.WriteFile(file, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	waitFor(t, func() bool {
		for _, batch := range got.all() {
			for _, ev := range batch {
				if ev.Path == file {
					return true
				}
			}
		}
		return false
	})
}

func TestDebouncer_Add(t *testing.T) {
	var got batches

	debouncer := NewDebouncer(50 * time.Millisecond)
	debouncer.SetCallback(got.add)

	debouncer.Add(Event{Path: "b.mat", Op: Changed})
	debouncer.Add(Event{Path: "a.mat", Op: Changed})
	debouncer.Add(Event{Path: "b.mat", Op: Removed})

	waitFor(t, func() bool { return len(got.all()) == 1 })

	batch := got.all()[0]
	if len(batch) != 2 {
		t.Fatalf("Expected 2 unique paths, got %d", len(batch))
	}
	if batch[0] != (Event{Path: "a.mat", Op: Changed}) || batch[1] != (Event{Path: "b.mat", Op: Removed}) {
		t.Errorf("Unexpected batch %v", batch)
	}
}

func TestDebouncer_MultipleFlushes(t *testing.T) {
	var got batches

	debouncer := NewDebouncer(30 * time.Millisecond)
	debouncer.SetCallback(got.add)

	debouncer.Add(Event{Path: "file1.png"})
	waitFor(t, func() bool { return len(got.all()) == 1 })

	debouncer.Add(Event{Path: "file2.png"})
	waitFor(t, func() bool { return len(got.all()) == 2 })
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var got batches

	debouncer := NewDebouncer(30 * time.Millisecond)
	debouncer.SetCallback(got.add)
	debouncer.Add(Event{Path: "file1.png"})
	debouncer.Stop()
	debouncer.Add(Event{Path: "file2.png"})

	time.Sleep(80 * time.Millisecond)
	if n := len(got.all()); n != 0 {
		t.Errorf("Expected no batches after stop, got %d", n)
	}
}

func TestFileWatcher_ShouldIgnore(t *testing.T) {
	watcher := &FileWatcher{
		ignored: []string{"*.swp", "*.tmp-*"},
	}

	tests := []struct {
		path     string
		expected bool
	}{
		{"wood.png", false},
		{"wood.png.swp", true},
		{"compiled/wood.vtex_c.tmp-1234", true},
		{".DS_Store", true},
		{".git", true},
		{"models/rock.mdl", false},
	}

	for _, tt := range tests {
		result := watcher.shouldIgnore(tt.path)
		if result != tt.expected {
			t.Errorf("shouldIgnore(%q) = %v, expected %v", tt.path, result, tt.expected)
		}
	}
}

func TestFileWatcher_MatchesPattern(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		expected bool
	}{
		{[]string{"*.png"}, "wood.png", true},
		{[]string{"*.png"}, "WOOD.PNG", true},
		{[]string{"*.png"}, "rock.mdl", false},
		{[]string{"*.png", "*.mat"}, "wood.mat", true},
		{[]string{"level.*"}, "level.bundle", true},
		{[]string{}, "anything.txt", true},
	}

	for _, tt := range tests {
		watcher := &FileWatcher{patterns: tt.patterns}
		result := watcher.matchesPattern(tt.path)
		if result != tt.expected {
			t.Errorf("matchesPattern(%v, %q) = %v, expected %v",
				tt.patterns, tt.path, result, tt.expected)
		}
	}
}

func TestFileWatcher_Stop(t *testing.T) {
	watcher, err := NewFileWatcher(t.TempDir(), Options{}, func([]Event) {})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() returned error: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop() returned error: %v", err)
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue()
	q.Push([]Event{{Path: "a"}, {Path: "b"}})
	q.Push([]Event{{Path: "a", Op: Removed}})

	if q.Len() != 2 {
		t.Fatalf("Expected 2 queued events, got %d", q.Len())
	}
	events := q.Drain()
	if events[0] != (Event{Path: "a", Op: Removed}) || events[1] != (Event{Path: "b"}) {
		t.Errorf("Unexpected events %v", events)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Error("Expected queue to be empty after drain")
	}
}

func BenchmarkDebouncer_Add(b *testing.B) {
	debouncer := NewDebouncer(100 * time.Millisecond)
	debouncer.SetCallback(func([]Event) {})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		debouncer.Add(Event{Path: "file.png"})
	}
}
