package playback

import (
	"context"
	"sync"
)

var (
	_ Transport = (*MockTransport)(nil)
	_ Handle    = (*MockHandle)(nil)
)

// MockTransport is an in-memory Transport for tests.
type MockTransport struct {
	mu         sync.Mutex
	connectErr error
	connects   []Destination
	handles    []*MockHandle
}

// NewMockTransport creates a transport whose connections always succeed.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// FailConnects makes subsequent connects return err (nil restores success).
func (t *MockTransport) FailConnects(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErr = err
}

func (t *MockTransport) Connect(_ context.Context, dest Destination) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connects = append(t.connects, dest)
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	h := &MockHandle{dest: dest, connected: true}
	t.handles = append(t.handles, h)
	return h, nil
}

// Connects returns every destination a connect was attempted for.
func (t *MockTransport) Connects() []Destination {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Destination(nil), t.connects...)
}

// Handles returns the handles created so far, oldest first.
func (t *MockTransport) Handles() []*MockHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*MockHandle(nil), t.handles...)
}

// Last returns the most recently created handle.
func (t *MockTransport) Last() *MockHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.handles) == 0 {
		return nil
	}
	return t.handles[len(t.handles)-1]
}

// MockHandle records the commands issued against it.
type MockHandle struct {
	mu            sync.Mutex
	dest          Destination
	connected     bool
	playing       bool
	paused        bool
	locators      []string
	calls         []string
	playErr       error
	disconnectErr error
}

func (h *MockHandle) Play(locator string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "play")
	h.locators = append(h.locators, locator)
	if h.playErr != nil {
		return h.playErr
	}
	h.playing = true
	h.paused = false
	return nil
}

func (h *MockHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "stop")
	h.playing = false
	h.paused = false
}

func (h *MockHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "pause")
	if h.playing {
		h.playing = false
		h.paused = true
	}
}

func (h *MockHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "resume")
	if h.paused {
		h.paused = false
		h.playing = true
	}
}

func (h *MockHandle) Disconnect(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "disconnect")
	h.connected = false
	h.playing = false
	h.paused = false
	return h.disconnectErr
}

func (h *MockHandle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *MockHandle) IsPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *MockHandle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Finish simulates the current track ending on its own.
func (h *MockHandle) Finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	h.paused = false
}

// Drop simulates the voice connection going away.
func (h *MockHandle) Drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
}

// FailPlay makes subsequent Play calls return err.
func (h *MockHandle) FailPlay(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playErr = err
}

// FailDisconnect makes subsequent Disconnect calls return err.
func (h *MockHandle) FailDisconnect(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectErr = err
}

// Destination returns the channel the handle was opened for.
func (h *MockHandle) Destination() Destination {
	return h.dest
}

// Locators returns every locator passed to Play.
func (h *MockHandle) Locators() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.locators...)
}

// Calls returns the transport commands issued, in order. Status queries
// are not recorded.
func (h *MockHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// RecordingNotifier collects notifier events for tests.
type RecordingNotifier struct {
	mu      sync.Mutex
	playing []Entry
	stopped []Destination
}

func (n *RecordingNotifier) NowPlaying(_ context.Context, _ Destination, entry Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = append(n.playing, entry)
}

func (n *RecordingNotifier) Stopped(_ context.Context, dest Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = append(n.stopped, dest)
}

// Played returns the entries announced so far.
func (n *RecordingNotifier) Played() []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Entry(nil), n.playing...)
}

// StoppedCount returns how many stopped events were seen.
func (n *RecordingNotifier) StoppedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.stopped)
}
