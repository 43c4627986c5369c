package midi

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recorder collects handler calls; handlers may run on the client goroutine
type recorder struct {
	mu          sync.Mutex
	connections []ConnectionStatus
	banks       []int
	activations [][2]uint8
	monitored   [][3]uint8
	next, prev  int
	bindings    []Bindings
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnConnectionChanged: func(s ConnectionStatus) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connections = append(r.connections, s)
		},
		OnBankChanged: func(bank int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.banks = append(r.banks, bank)
		},
		OnChannelActivated: func(channel, velocity uint8) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.activations = append(r.activations, [2]uint8{channel, velocity})
		},
		OnMessage: func(channel, data1, data2 uint8) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.monitored = append(r.monitored, [3]uint8{channel, data1, data2})
		},
		OnNextPage: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.next++
		},
		OnPrevPage: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.prev++
		},
		OnBindingsChanged: func(b Bindings) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.bindings = append(r.bindings, b)
		},
	}
}

func (r *recorder) connectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

func (r *recorder) lastConnection() ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connections[len(r.connections)-1]
}

func (r *recorder) nextCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

type harness struct {
	client    *Client
	transport *fakeTransport
	events    *recorder
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		transport: newFakeTransport(),
		events:    &recorder{},
		logs:      logs,
	}
	opts = append([]Option{
		WithLogger(zap.New(core)),
		WithHandlers(h.events.handlers()),
		WithPollInterval(time.Hour),
	}, opts...)
	h.client = NewClient(h.transport, opts...)
	t.Cleanup(h.client.Close)
	return h
}

func (h *harness) warnings() int {
	return h.logs.FilterLevelExact(zapcore.WarnLevel).Len()
}

func (h *harness) connectBoth() {
	in := Port{Number: 0, Name: "Genos"}
	out := Port{Number: 0, Name: "Genos"}
	h.client.Connect(&in, &out)
}

func TestClientPageTurns(t *testing.T) {
	h := newHarness(t)

	h.client.HandleMessage(gomidi.Message{0xB0, 64, 127})
	h.client.HandleMessage(gomidi.Message{0xB0, 67, 127})
	h.client.HandleMessage(gomidi.Message{0xB1, 64, 127}) // other channel

	assert.Equal(t, 1, h.events.next)
	assert.Equal(t, 1, h.events.prev)
	assert.Len(t, h.events.monitored, 3)
	assert.Equal(t, [3]uint8{1, 64, 127}, h.events.monitored[2])
}

func TestClientBankChangeNotifiesOnlyOnChange(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.client.BankNumber())

	h.client.HandleMessage(registrationFrame(2))
	h.client.HandleMessage(registrationFrame(2))
	h.client.HandleMessage(registrationFrame(9))

	assert.Equal(t, []int{3, 10}, h.events.banks)
	assert.Equal(t, 10, h.client.BankNumber())
}

func TestClientChannelActivation(t *testing.T) {
	h := newHarness(t)

	h.client.HandleMessage(gomidi.Message{0x9C, 60, 90})
	h.client.HandleMessage(gomidi.Message{0x8C, 60, 90})

	assert.Equal(t, [][2]uint8{{12, 90}, {12, 0}}, h.events.activations)
}

func TestClientIgnoresEmptyMessages(t *testing.T) {
	h := newHarness(t)

	h.client.HandleMessage(nil)
	h.client.HandleMessage(gomidi.Message{0xF8})

	assert.Empty(t, h.events.monitored)
	assert.Empty(t, h.events.activations)
	assert.Zero(t, h.warnings())
}

func TestClientReceivesFromTransport(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()

	require.True(t, h.transport.deliver(gomidi.Message{0xB0, 64, 127}))
	assert.Eventually(t, func() bool { return h.events.nextCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClientConnect(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()

	status := h.client.Status()
	assert.True(t, status.Input)
	assert.True(t, status.Output)
	assert.NotEmpty(t, status.Session)
	assert.Equal(t, 1, h.events.connectionCount())
	assert.Equal(t, status, h.events.lastConnection())

	// reconnecting closes the old ports first and mints a new session
	h.connectBoth()
	assert.Equal(t, 2, h.transport.closes[DirectionIn])
	assert.Equal(t, 2, h.transport.closes[DirectionOut])
	assert.NotEqual(t, status.Session, h.client.Status().Session)
}

func TestClientConnectLeavesNilDirectionUntouched(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()
	inCloses := h.transport.closes[DirectionIn]

	synth := Port{Number: 1, Name: "Synth"}
	h.client.Connect(nil, &synth)

	assert.Equal(t, inCloses, h.transport.closes[DirectionIn])
	assert.Equal(t, "Genos", h.transport.open[DirectionIn].Name)
	assert.Equal(t, "Synth", h.transport.open[DirectionOut].Name)
	assert.True(t, h.client.Status().Input)
	assert.Equal(t, 2, h.events.connectionCount())
}

func TestClientConnectNothingStillNotifies(t *testing.T) {
	h := newHarness(t)
	h.client.Connect(nil, nil)

	assert.Equal(t, 1, h.events.connectionCount())
	assert.Equal(t, ConnectionStatus{}, h.events.lastConnection())
}

func TestClientConnectFailureIsolatedPerDirection(t *testing.T) {
	h := newHarness(t)
	h.transport.failIn = errDeviceGone

	h.connectBoth()

	status := h.client.Status()
	assert.False(t, status.Input)
	assert.True(t, status.Output)
	assert.Equal(t, 1, h.events.connectionCount())
	assert.Equal(t, 1, h.logs.FilterMessage("failed to open input port").Len())
}

func TestClientConnectRecoversTransportPanic(t *testing.T) {
	h := newHarness(t)
	panicky := &panicTransport{fakeTransport: h.transport}
	h.client.transport = panicky

	assert.NotPanics(t, h.connectBoth)
	assert.False(t, h.client.Status().Input)
	assert.True(t, h.client.Status().Output)
}

func TestClientDisconnectTwice(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()

	h.client.Disconnect()
	h.client.Disconnect()

	assert.Equal(t, 3, h.events.connectionCount())
	for _, s := range h.events.connections[1:] {
		assert.Equal(t, ConnectionStatus{}, s)
	}
	assert.Equal(t, ConnectionStatus{}, h.client.Status())
}

func TestClientCheckConnectionStatusNotifiesOnFlipOnly(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()
	require.Equal(t, 1, h.events.connectionCount())

	h.client.CheckConnectionStatus()
	assert.Equal(t, 1, h.events.connectionCount())

	h.transport.unplug(DirectionOut)
	h.client.CheckConnectionStatus()
	require.Equal(t, 2, h.events.connectionCount())
	assert.True(t, h.events.lastConnection().Input)
	assert.False(t, h.events.lastConnection().Output)

	h.client.CheckConnectionStatus()
	assert.Equal(t, 2, h.events.connectionCount())
}

func TestClientCheckConnectionStatusClearsSessionWhenAllLost(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()
	require.NotEmpty(t, h.client.Status().Session)

	h.transport.unplug(DirectionIn)
	h.client.CheckConnectionStatus()
	assert.NotEmpty(t, h.client.Status().Session)

	h.transport.unplug(DirectionOut)
	h.client.CheckConnectionStatus()
	assert.Equal(t, ConnectionStatus{}, h.client.Status())
	assert.Equal(t, ConnectionStatus{}, h.events.lastConnection())
}

func TestClientStatusCheckOvertakenByConnect(t *testing.T) {
	h := newHarness(t)
	gated := newGatedTransport(h.transport)
	h.client.transport = gated

	checked := make(chan struct{})
	go func() {
		defer close(checked)
		h.client.CheckConnectionStatus()
	}()

	// the check has read both directions as closed and is held there
	<-gated.reached
	h.connectBoth()
	require.True(t, h.client.Status().Input)
	require.True(t, h.client.Status().Output)

	close(gated.release)
	<-checked

	status := h.client.Status()
	assert.True(t, status.Input)
	assert.True(t, status.Output)
	assert.NotEmpty(t, status.Session)
	assert.Equal(t, 1, h.events.connectionCount())
	assert.True(t, h.events.lastConnection().Output)
}

func TestClientConnectAfterCloseIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.client.Close()

	h.connectBoth()
	assert.False(t, h.transport.IsConnected(DirectionIn))
	assert.False(t, h.transport.IsConnected(DirectionOut))
	assert.Equal(t, 0, h.events.connectionCount())
	assert.Equal(t, 1, h.logs.FilterMessage("connect after close ignored").Len())

	assert.ErrorIs(t, h.client.ConnectByName("Genos"), ErrClosed)
	assert.False(t, h.transport.IsConnected(DirectionIn))
	assert.Empty(t, h.client.Bindings().Device)
}

func TestClientPollsConnectionStatus(t *testing.T) {
	h := newHarness(t, WithPollInterval(5*time.Millisecond))
	h.connectBoth()

	h.transport.unplug(DirectionIn)
	assert.Eventually(t, func() bool {
		return !h.client.Status().Input
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, h.events.connectionCount(), 2)
}

func TestClientConnectByName(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.ConnectByName("Synth"))
	assert.Nil(t, h.transport.open[DirectionIn])
	assert.Equal(t, "Synth", h.transport.open[DirectionOut].Name)
	assert.Equal(t, "Synth", h.client.Bindings().Device)

	err := h.client.ConnectByName("Nowhere")
	assert.ErrorIs(t, err, ErrPortNotFound)
	assert.Equal(t, 1, h.events.connectionCount())
}

func TestClientSetters(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.SetChannel(3))
	require.NoError(t, h.client.SetChannel(3))
	require.NoError(t, h.client.SetNextPageControl(20))
	require.NoError(t, h.client.SetPrevPageControl(21))

	assert.Len(t, h.events.bindings, 3)
	assert.Equal(t, Bindings{Channel: 3, NextPageControl: 20, PrevPageControl: 21}, h.client.Bindings())

	assert.ErrorIs(t, h.client.SetChannel(16), ErrInvalidChannel)
	assert.ErrorIs(t, h.client.SetChannel(-1), ErrInvalidChannel)
	assert.ErrorIs(t, h.client.SetNextPageControl(128), ErrInvalidControl)
	assert.ErrorIs(t, h.client.SetPrevPageControl(-1), ErrInvalidControl)
	assert.ErrorIs(t, h.client.SetBindings(Bindings{Channel: 16}), ErrInvalidChannel)
	assert.Len(t, h.events.bindings, 3)
	assert.Equal(t, 5, h.warnings())

	h.client.HandleMessage(gomidi.Message{0xB3, 20, 127})
	assert.Equal(t, 1, h.events.next)
}

func TestClientSetBankNumber(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.SetBankNumber(4))
	assert.ErrorIs(t, h.client.SetBankNumber(0), ErrInvalidBank)
	assert.ErrorIs(t, h.client.SetBankNumber(11), ErrInvalidBank)

	assert.Equal(t, 4, h.client.BankNumber())
	assert.Equal(t, []int{4}, h.events.banks)
}

func TestClientSendSurface(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()

	require.NoError(t, h.client.SendAllNotesOff())
	require.NoError(t, h.client.SendMsbLsbPc(0, -5, 200, 64))
	require.NoError(t, h.client.SendRegistrationBankChange(7))
	require.NoError(t, h.client.SendControlChange(1, 7, 100))
	require.NoError(t, h.client.SendProgramChange(1, 5))
	require.NoError(t, h.client.SendNotesOff(2))
	require.NoError(t, h.client.SendRaw(gomidi.Message{0xFA}))

	sent := h.transport.sentMessages()
	require.Len(t, sent, 16+3+1+1+1+1+1)
	assert.Equal(t, gomidi.Message{0xBF, 123, 0}, sent[15])
	assert.Equal(t, []gomidi.Message{{0xB0, 0, 0}, {0xB0, 32, 127}, {0xC0, 64}}, sent[16:19])
	assert.Equal(t, registrationFrame(6), sent[19])
	assert.Equal(t, gomidi.Message{0xB1, 7, 100}, sent[20])
	assert.Equal(t, gomidi.Message{0xC1, 5}, sent[21])
	assert.Equal(t, gomidi.Message{0xB2, 123, 0}, sent[22])
	assert.Equal(t, gomidi.Message{0xFA}, sent[23])
}

func TestClientSendRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()

	assert.ErrorIs(t, h.client.SendRegistrationBankChange(0), ErrInvalidBank)
	assert.ErrorIs(t, h.client.SendRegistrationBankChange(11), ErrInvalidBank)
	assert.ErrorIs(t, h.client.SendMsbLsbPc(16, 0, 0, 0), ErrInvalidChannel)
	assert.ErrorIs(t, h.client.SendControlChange(-1, 0, 0), ErrInvalidChannel)
	assert.Empty(t, h.transport.sentMessages())
	assert.Equal(t, 4, h.warnings())
}

func TestClientSendWithoutOutput(t *testing.T) {
	h := newHarness(t)

	err := h.client.SendAllNotesOff()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 1, h.logs.FilterMessage("failed to send MIDI message").Len())
}

func TestClientCloseReleasesPorts(t *testing.T) {
	h := newHarness(t)
	h.connectBoth()

	h.client.Close()
	h.client.Close()

	assert.False(t, h.transport.IsConnected(DirectionIn))
	assert.False(t, h.transport.IsConnected(DirectionOut))

	select {
	case <-h.client.done:
	default:
		t.Fatal("client loop still running after Close")
	}
}

func TestClientQueueFullDrops(t *testing.T) {
	h := newHarness(t, WithQueueSize(1))
	h.client.Close() // stop the loop so nothing drains the queue

	h.client.enqueue(gomidi.Message{0xB0, 64, 127})
	h.client.enqueue(gomidi.Message{0xB0, 64, 127})

	assert.Equal(t, 1, h.logs.FilterMessage("incoming queue full; dropping MIDI message").Len())
}

// panicTransport panics when opening an input, like a driver fed a stale handle
type panicTransport struct {
	*fakeTransport
}

func (p *panicTransport) OpenIn(Port, func(gomidi.Message)) error {
	panic("stale handle")
}

// gatedTransport holds the first output liveness read until release is
// closed, after signalling reached
type gatedTransport struct {
	*fakeTransport
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newGatedTransport(f *fakeTransport) *gatedTransport {
	g := &gatedTransport{
		fakeTransport: f,
		reached:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	g.armed.Store(true)
	return g
}

func (g *gatedTransport) IsConnected(d Direction) bool {
	connected := g.fakeTransport.IsConnected(d)
	if d == DirectionOut && g.armed.CompareAndSwap(true, false) {
		close(g.reached)
		<-g.release
	}
	return connected
}
