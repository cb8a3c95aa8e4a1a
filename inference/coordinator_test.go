package inference

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// stubDescriber is a controllable Describer with a call count. Calls block
// until release is closed when blocking is enabled.
type stubDescriber struct {
	mu      sync.Mutex
	calls   int
	text    string
	err     error
	release chan struct{} // nil means respond immediately
}

func (s *stubDescriber) Infer(ctx context.Context, imageJPEG []byte, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	release := s.release
	text, err := s.text, s.err
	s.mu.Unlock()

	if release != nil {
		<-release
	}
	return text, err
}

func (s *stubDescriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}

// waitForCalls polls until the stub has seen n calls or the deadline passes.
func waitForCalls(t *testing.T, stub *stubDescriber, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for stub.callCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("backend saw %d calls, want %d", stub.callCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestCoordinator(backend Describer, interval int) *Coordinator {
	return NewCoordinator(backend, Config{
		SamplingInterval: interval,
		Prompt:           "describe",
	}, zap.NewNop())
}

func TestNoDispatchBeforeSamplingInterval(t *testing.T) {
	stub := &stubDescriber{text: "a desk"}
	c := newTestCoordinator(stub, 30)

	frame := testFrame()
	for i := uint64(1); i < 30; i++ {
		c.SubmitFrame(frame, i)
	}
	c.waitIdle()

	if got := stub.callCount(); got != 0 {
		t.Errorf("dispatches for frames 1..29 = %d, want 0", got)
	}

	c.SubmitFrame(frame, 30)
	c.waitIdle()
	if got := stub.callCount(); got != 1 {
		t.Errorf("dispatches after frame 30 = %d, want exactly 1", got)
	}
}

func TestBusySuppressesDispatchUntilCompletion(t *testing.T) {
	release := make(chan struct{})
	stub := &stubDescriber{text: "a cat", release: release}
	c := newTestCoordinator(stub, 10)
	frame := testFrame()

	c.SubmitFrame(frame, 10)
	waitForCalls(t, stub, 1)

	// Multiples of K arriving while busy are not dispatched.
	c.SubmitFrame(frame, 20)
	c.SubmitFrame(frame, 30)
	if got := stub.callCount(); got != 1 {
		t.Errorf("calls while busy = %d, want 1", got)
	}

	close(release)
	c.waitIdle()

	// The next multiple of K after completion dispatches again.
	stub.mu.Lock()
	stub.release = nil
	stub.mu.Unlock()
	c.SubmitFrame(frame, 40)
	c.waitIdle()
	if got := stub.callCount(); got != 2 {
		t.Errorf("calls after completion = %d, want 2", got)
	}
}

func TestSubmitFrameDoesNotBlockOnSlowBackend(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stub := &stubDescriber{text: "slow", release: release}
	c := newTestCoordinator(stub, 1)
	frame := testFrame()

	done := make(chan struct{})
	go func() {
		// Every index is a dispatch candidate; all but the first must
		// return immediately while the backend hangs.
		for i := uint64(1); i <= 5000; i++ {
			c.SubmitFrame(frame, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SubmitFrame blocked on an in-flight inference call")
	}
	waitForCalls(t, stub, 1)
	if got := stub.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1 while backend hangs", got)
	}
}

func TestFailurePreservesPreviousText(t *testing.T) {
	stub := &stubDescriber{text: "a sunny street"}
	c := newTestCoordinator(stub, 1)
	frame := testFrame()

	c.SubmitFrame(frame, 1)
	c.waitIdle()
	textBefore, _ := c.CurrentResponse()
	if textBefore != "a sunny street" {
		t.Fatalf("text after success = %q", textBefore)
	}

	stub.mu.Lock()
	stub.err = errors.New("backend down")
	stub.mu.Unlock()

	c.SubmitFrame(frame, 2)
	c.waitIdle()

	text, processing := c.CurrentResponse()
	if text != textBefore {
		t.Errorf("text after failure = %q, want unchanged %q", text, textBefore)
	}
	if processing {
		t.Error("IsProcessing still true after failed call")
	}
}

func TestResultPairIsAlwaysConsistent(t *testing.T) {
	release := make(chan struct{})
	stub := &stubDescriber{text: "new text", release: release}
	c := newTestCoordinator(stub, 1)
	frame := testFrame()

	c.SubmitFrame(frame, 1)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				text, processing := c.CurrentResponse()
				// Valid pairs: ("", true) pre-completion and
				// ("new text", false) post-completion.
				if processing && text == "new text" {
					t.Error("observed new text while still processing")
					return
				}
				if !processing && text != "" && text != "new text" {
					t.Errorf("observed torn pair: (%q, %v)", text, processing)
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	c.waitIdle()
	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestProcessingFlagVisibleWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	stub := &stubDescriber{text: "x", release: release}
	c := newTestCoordinator(stub, 1)

	c.SubmitFrame(testFrame(), 1)
	if _, processing := c.CurrentResponse(); !processing {
		t.Error("IsProcessing false while a call is outstanding")
	}

	close(release)
	c.waitIdle()
	if _, processing := c.CurrentResponse(); processing {
		t.Error("IsProcessing true after completion")
	}
}

func TestNilFrameIsIgnored(t *testing.T) {
	stub := &stubDescriber{text: "x"}
	c := newTestCoordinator(stub, 1)

	c.SubmitFrame(nil, 1)
	c.waitIdle()
	if got := stub.callCount(); got != 0 {
		t.Errorf("nil frame dispatched %d calls", got)
	}
	if _, ok := c.LastFrame(); ok {
		t.Error("nil frame retained as last frame")
	}
}

func TestLastFrameKeepsOnlyMostRecent(t *testing.T) {
	stub := &stubDescriber{text: "x"}
	c := newTestCoordinator(stub, 100)

	first := testFrame()
	second := image.NewRGBA(image.Rect(0, 0, 16, 16))
	c.SubmitFrame(first, 1)
	c.SubmitFrame(second, 2)

	got, ok := c.LastFrame()
	if !ok {
		t.Fatal("LastFrame() empty after submissions")
	}
	if got.Bounds().Dx() != 16 {
		t.Error("LastFrame() is not the most recent frame")
	}
}

func TestSamplingIntervalNormalized(t *testing.T) {
	c := NewCoordinator(&stubDescriber{}, Config{SamplingInterval: 0}, zap.NewNop())
	if c.cfg.SamplingInterval != DefaultSamplingInterval {
		t.Errorf("SamplingInterval = %d, want default %d",
			c.cfg.SamplingInterval, DefaultSamplingInterval)
	}
}
