package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

const fakeBytesPerFrame = BitsPerSample / 8 * Channels

// FakeContext replays in-memory PCM as if it were a microphone.
type FakeContext struct {
	pcm      []byte
	realtime bool

	// DeviceList is returned by Devices.
	DeviceList []DeviceInfo
	// FailWith, when set, is reported through the error callback once the
	// PCM has been delivered.
	FailWith error
	// StartErr makes NewCapture fail.
	StartErr error
}

func NewFakeContext(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

// NewFakeContextFromWAV loads a 16-bit WAV file for replay.
func NewFakeContextFromWAV(path string, realtime bool) (*FakeContext, error) {
	buf, err := ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	return &FakeContext{pcm: buf.PCM(), realtime: realtime}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.DeviceList, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	name := "fake"
	if device != nil {
		name = device.Name
	}
	return &FakeCapture{
		pcm:       f.pcm,
		realtime:  f.realtime,
		failWith:  f.FailWith,
		name:      name,
		audioDone: make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	failWith  error
	name      string
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	onError  atomic.Pointer[func(error)]
	stopCh   chan struct{}
	feedDone chan struct{}
	once     sync.Once
}

// AudioDone is closed once every PCM byte has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) SetErrorCallback(fn func(error)) { f.onError.Store(&fn) }

func (f *FakeCapture) DeviceName() string { return f.name }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(pos int) int {
	end := min(pos+ChunkFrames*fakeBytesPerFrame, len(f.pcm))
	if cb := f.callback(); cb != nil {
		cb(f.pcm[pos:end], uint32((end-pos)/fakeBytesPerFrame))
	}
	return end
}

func (f *FakeCapture) finish() {
	close(f.audioDone)
	if f.failWith != nil {
		if fn := f.onError.Load(); fn != nil {
			(*fn)(f.failWith)
		}
	}
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	if !f.realtime {
		for pos := 0; pos < len(f.pcm); {
			pos = f.feedChunk(pos)
		}
		f.finish()
		close(f.feedDone)
		return nil
	}

	interval := time.Duration(ChunkFrames) * time.Second / time.Duration(SampleRate)
	go func() {
		defer close(f.feedDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for pos := 0; pos < len(f.pcm); {
			pos = f.feedChunk(pos)
			select {
			case <-f.stopCh:
				return
			case <-ticker.C:
			}
		}
		f.finish()
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	f.once.Do(func() { close(f.stopCh) })
	<-f.feedDone
}

func (f *FakeCapture) Close() {}
