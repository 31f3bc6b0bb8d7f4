package audio

import (
	"errors"
	"strings"
	"testing"

	"vocalsnr/internal/config"
)

type stubSource struct {
	name        string
	initialized bool
	released    int
}

func (s *stubSource) Name() string                  { return s.name }
func (s *stubSource) Initialized() bool             { return s.initialized }
func (s *stubSource) Start() error                  { return nil }
func (s *stubSource) Read(buf []int16) (int, error) { return len(buf), nil }
func (s *stubSource) Stop() error                   { return nil }
func (s *stubSource) Interrupt()                    {}
func (s *stubSource) Release() error                { s.released++; return nil }

func testParams() Params {
	return NewParams(config.DefaultCapture(), 0, config.MinDeviceID)
}

func candidate(name string, open func(Params) (Source, error), calls *[]string) Candidate {
	return Candidate{Name: name, Open: func(p Params) (Source, error) {
		*calls = append(*calls, name)
		return open(p)
	}}
}

func TestNewParams(t *testing.T) {
	p := NewParams(config.DefaultCapture(), 5000, 2)
	want := Params{SampleRate: 44100, Channels: 1, WindowSize: 4410, BufferSize: 10000, Device: 2}
	if p != want {
		t.Errorf("NewParams() = %+v, want %+v", p, want)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestAcquire_FirstCandidateWins(t *testing.T) {
	var calls []string
	first := &stubSource{name: "raw", initialized: true}
	a := NewAcquirer(testParams(), StaticPermission(true),
		candidate("raw", func(Params) (Source, error) { return first, nil }, &calls),
		candidate("microphone", func(Params) (Source, error) { t.Fatal("fallback opened"); return nil, nil }, &calls),
	)

	src, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if src != first {
		t.Errorf("Acquire() = %v, want first candidate", src)
	}
	if first.released != 0 {
		t.Error("winning candidate was released")
	}
	if strings.Join(calls, ",") != "raw" {
		t.Errorf("calls = %v", calls)
	}
}

func TestAcquire_Fallback(t *testing.T) {
	var calls []string
	uninit := &stubSource{name: "uninit"}
	leaked := &stubSource{name: "leaked"}
	winner := &stubSource{name: "winner", initialized: true}

	a := NewAcquirer(testParams(), StaticPermission(true),
		candidate("error", func(Params) (Source, error) { return nil, errors.New("unsupported") }, &calls),
		candidate("partial", func(Params) (Source, error) { return leaked, errors.New("half built") }, &calls),
		candidate("panic", func(Params) (Source, error) { panic("driver bug") }, &calls),
		candidate("uninit", func(Params) (Source, error) { return uninit, nil }, &calls),
		candidate("winner", func(Params) (Source, error) { return winner, nil }, &calls),
	)

	src, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if src != winner {
		t.Fatalf("Acquire() = %v, want winner", src)
	}
	if got := strings.Join(calls, ","); got != "error,partial,panic,uninit,winner" {
		t.Errorf("candidate order = %s", got)
	}
	if uninit.released != 1 || leaked.released != 1 {
		t.Errorf("failed candidates released %d/%d times, want 1/1", uninit.released, leaked.released)
	}
}

func TestAcquire_AllExhausted(t *testing.T) {
	var calls []string
	uninit := &stubSource{name: "uninit"}
	a := NewAcquirer(testParams(), StaticPermission(true),
		candidate("raw", func(Params) (Source, error) { return nil, errors.New("busy") }, &calls),
		candidate("microphone", func(Params) (Source, error) { return uninit, nil }, &calls),
	)

	src, err := a.Acquire()
	if src != nil {
		t.Errorf("Acquire() returned source %v on failure", src)
	}
	if !errors.Is(err, ErrAllSourcesExhausted) {
		t.Fatalf("Acquire() error = %v, want ErrAllSourcesExhausted", err)
	}
	for _, want := range []string{"raw: busy", "microphone: source not initialized"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if uninit.released != 1 {
		t.Errorf("residual handle released %d times, want 1", uninit.released)
	}
}

func TestAcquire_NoCandidates(t *testing.T) {
	_, err := NewAcquirer(testParams(), StaticPermission(true)).Acquire()
	if !errors.Is(err, ErrAllSourcesExhausted) {
		t.Errorf("Acquire() error = %v, want ErrAllSourcesExhausted", err)
	}
}

func TestAcquire_PermissionDenied(t *testing.T) {
	var calls []string
	asked := 0
	perm := permissionFunc(func() bool { asked++; return false })
	a := NewAcquirer(testParams(), perm,
		candidate("raw", func(Params) (Source, error) { return &stubSource{initialized: true}, nil }, &calls),
	)

	if _, err := a.Acquire(); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Acquire() error = %v, want ErrPermissionDenied", err)
	}
	if len(calls) != 0 {
		t.Errorf("candidates constructed without permission: %v", calls)
	}
	if asked != 1 {
		t.Errorf("permission asked %d times, want 1", asked)
	}

	if _, err := NewAcquirer(testParams(), nil).Acquire(); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("nil permission: error = %v, want ErrPermissionDenied", err)
	}
}

func TestAcquire_InvalidParams(t *testing.T) {
	var calls []string
	open := func(Params) (Source, error) { return &stubSource{initialized: true}, nil }

	for _, p := range []Params{
		{SampleRate: 44100, Channels: 1, WindowSize: 4410, BufferSize: 0},
		{SampleRate: 44100, Channels: 1, WindowSize: 0, BufferSize: 8192},
		{SampleRate: 0, Channels: 1, WindowSize: 4410, BufferSize: 8192},
		{SampleRate: 44100, Channels: 0, WindowSize: 4410, BufferSize: 8192},
	} {
		a := NewAcquirer(p, StaticPermission(true), candidate("raw", open, &calls))
		_, err := a.Acquire()
		if !errors.Is(err, ErrInvalidParams) || !errors.Is(err, config.ErrInvalidCapture) {
			t.Errorf("Acquire(%+v) error = %v, want ErrInvalidParams", p, err)
		}
	}

	// Params derived from a broken capture fail the same check.
	c := config.DefaultCapture()
	c.WindowDuration = 0
	a := NewAcquirer(NewParams(c, 0, config.MinDeviceID), StaticPermission(true), candidate("raw", open, &calls))
	if _, err := a.Acquire(); !errors.Is(err, config.ErrInvalidCapture) {
		t.Errorf("Acquire(zero window) error = %v, want ErrInvalidCapture", err)
	}
	if len(calls) != 0 {
		t.Errorf("candidates constructed with invalid params: %v", calls)
	}
}
