package game

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/zombie-mafia-backend/internal"
	"github.com/scythe504/zombie-mafia-backend/internal/storage"
)

var (
	_ Store     = (*storage.MemoryStore)(nil)
	_ Store     = (*storage.PostgresStore)(nil)
	_ Store     = (*flakyStore)(nil)
	_ Publisher = (*recordingPublisher)(nil)
	_ Publisher = (*gatedPublisher)(nil)
)

// --- Store ---

var errStoreDown = errors.New("store unavailable")

// flakyStore fails the next failSteps SaveStep calls.
type flakyStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	failSteps int
}

func (s *flakyStore) SaveStep(ctx context.Context, roomID int64, g *internal.Game, phase internal.Phase, seconds int) error {
	s.mu.Lock()
	fail := s.failSteps > 0
	if fail {
		s.failSteps--
	}
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.MemoryStore.SaveStep(ctx, roomID, g, phase, seconds)
}

// --- Publisher ---

type published struct {
	Topic string
	Type  string
	Raw   string
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
}

func (p *recordingPublisher) Publish(topic string, payload string) error {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal([]byte(payload), &head)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{Topic: topic, Type: head.Type, Raw: payload})
	return nil
}

func (p *recordingPublisher) ofType(msgType string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// gatedPublisher holds the first message of type gateOn until release is
// closed, signalling entered when it starts waiting.
type gatedPublisher struct {
	recordingPublisher

	gateOn  string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedPublisher(msgType string) *gatedPublisher {
	return &gatedPublisher{gateOn: msgType, entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *gatedPublisher) Publish(topic string, payload string) error {
	if strings.Contains(payload, `"type":"`+p.gateOn+`"`) {
		p.once.Do(func() {
			close(p.entered)
			<-p.release
		})
	}
	return p.recordingPublisher.Publish(topic, payload)
}

// --- VoiceProvisioner ---

type MockVoiceProvisioner struct {
	mock.Mock
}

func (m *MockVoiceProvisioner) CreateSession(ctx context.Context, roomID int64) (string, error) {
	args := m.Called(ctx, roomID)
	return args.String(0), args.Error(1)
}

func (m *MockVoiceProvisioner) IssueToken(ctx context.Context, roomID, memberID int64) (string, error) {
	args := m.Called(ctx, roomID, memberID)
	return args.String(0), args.Error(1)
}

func (m *MockVoiceProvisioner) CloseSession(ctx context.Context, roomID int64) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// quietVoice accepts every call.
func quietVoice() *MockVoiceProvisioner {
	v := &MockVoiceProvisioner{}
	v.On("CreateSession", mock.Anything, mock.Anything).Return("session", nil).Maybe()
	v.On("IssueToken", mock.Anything, mock.Anything, mock.Anything).Return("token", nil).Maybe()
	v.On("CloseSession", mock.Anything, mock.Anything).Return(nil).Maybe()
	return v
}

// --- RoomDirectory ---

type staticDirectory struct {
	participants map[int64][]internal.Participant
	option       internal.GameOption
}

func (d *staticDirectory) Participants(_ context.Context, roomID int64) ([]internal.Participant, error) {
	p, ok := d.participants[roomID]
	if !ok {
		return nil, internal.ErrRoomNotFound
	}
	return p, nil
}

func (d *staticDirectory) GameOption(_ context.Context, roomID int64) (internal.GameOption, error) {
	if _, ok := d.participants[roomID]; !ok {
		return internal.GameOption{}, internal.ErrRoomNotFound
	}
	return d.option, nil
}

func directoryWith(roomID int64, n int, option internal.GameOption) *staticDirectory {
	participants := make([]internal.Participant, 0, n)
	for id := int64(1); id <= int64(n); id++ {
		participants = append(participants, internal.Participant{MemberID: id, Nickname: "player"})
	}
	return &staticDirectory{
		participants: map[int64][]internal.Participant{roomID: participants},
		option:       option,
	}
}

// --- ticker ---

// manualTicker hands the scheduler a channel the test drives.
type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time), stopped: make(chan struct{}, 1)}
}

func (m *manualTicker) fn(time.Duration) (<-chan time.Time, func()) {
	return m.c, func() {
		select {
		case m.stopped <- struct{}{}:
		default:
		}
	}
}

func stillTicker(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

// --- fixtures ---

type fixture struct {
	manager   *Manager
	store     *storage.MemoryStore
	publisher *recordingPublisher
	voice     *MockVoiceProvisioner
}

func newFixture(t *testing.T, players int, option internal.GameOption) *fixture {
	t.Helper()
	f := &fixture{
		store:     storage.NewMemoryStore(),
		publisher: &recordingPublisher{},
		voice:     quietVoice(),
	}
	f.manager = NewManager(directoryWith(1, players, option), f.store, f.publisher, f.voice, rand.New(rand.NewSource(7)))
	f.manager.SetTicker(stillTicker)
	t.Cleanup(f.manager.Shutdown)
	return f
}

// seed stores a running game with fixed roles and puts it in phase with
// timer seconds left. Roles: 1 zombie, 2 police, 3 doctor, 4 and 5
// citizens, plus 6 mutant when withMutant.
func (f *fixture) seed(t *testing.T, phase internal.Phase, timer int, withMutant bool) *internal.Game {
	t.Helper()
	ctx := context.Background()
	option := internal.DefaultGameOption()
	g := internal.NewGame(1, option)
	roles := map[int64]internal.Role{
		1: internal.RoleZombie,
		2: internal.RolePolice,
		3: internal.RolePlagueDoctor,
		4: internal.RoleCitizen,
		5: internal.RoleCitizen,
	}
	if withMutant {
		roles[6] = internal.RoleMutant
	}
	for id := range roles {
		g.AddPlayer(id, "player")
	}
	require.NoError(t, g.ApplyRoles(roles))
	g.RestoreSurvivors()

	require.NoError(t, f.store.SaveGame(ctx, 1, g))
	require.NoError(t, f.store.SavePhase(ctx, 1, phase))
	require.NoError(t, f.store.SaveTimer(ctx, 1, timer))
	return g
}

func (f *fixture) load(t *testing.T) (*internal.Game, internal.Phase, int) {
	t.Helper()
	ctx := context.Background()
	g, err := f.store.LoadGame(ctx, 1)
	require.NoError(t, err)
	phase, err := f.store.GetPhase(ctx, 1)
	require.NoError(t, err)
	timer, err := f.store.GetTimer(ctx, 1)
	require.NoError(t, err)
	return g, phase, timer
}
