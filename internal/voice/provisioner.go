package voice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSession    = errors.New("voice-session-not-found")
	ErrInvalidToken = errors.New("invalid-voice-token")
	ErrNoSigningKey = errors.New("voice-signing-key-missing")
)

// voiceClaims is what a voice server needs to admit a member to a room.
// Fields must be exported for JSON serialization.
type voiceClaims struct {
	SessionID string `json:"sid"`
	RoomID    int64  `json:"room"`
	jwt.RegisteredClaims
}

// Claims is a verified voice token.
type Claims struct {
	SessionID string
	RoomID    int64
	MemberID  int64
	ExpiresAt time.Time
}

// Provisioner opens one voice session per room and signs HS256 tokens that
// admit a member to it.
type Provisioner struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[int64]string
}

func NewProvisioner(secretKey string, ttl time.Duration) *Provisioner {
	return &Provisioner{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
		sessions:  make(map[int64]string),
	}
}

// CreateSession returns the room's session, opening one if needed.
func (p *Provisioner) CreateSession(ctx context.Context, roomID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(p.secretKey) == 0 {
		return "", ErrNoSigningKey
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.sessions[roomID]; ok {
		return id, nil
	}
	id := uuid.NewString()
	p.sessions[roomID] = id
	log.Info().Int64("room", roomID).Str("session", id).Msg("[voice] session created")
	return id, nil
}

func (p *Provisioner) IssueToken(ctx context.Context, roomID, memberID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	sessionID, ok := p.sessions[roomID]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: room %d", ErrNoSession, roomID)
	}

	now := p.now()
	claims := voiceClaims{
		SessionID: sessionID,
		RoomID:    roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(memberID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secretKey)
}

// CloseSession forgets the room's session. Closing an unknown room is a
// no-op.
func (p *Provisioner) CloseSession(ctx context.Context, roomID int64) error {
	p.mu.Lock()
	id, ok := p.sessions[roomID]
	delete(p.sessions, roomID)
	p.mu.Unlock()

	if ok {
		log.Info().Int64("room", roomID).Str("session", id).Msg("[voice] session closed")
	}
	return nil
}

// Verify checks a token's signature and expiry, and that its session is
// still open.
func (p *Provisioner) Verify(tokenString string) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &voiceClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secretKey, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*voiceClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	p.mu.Lock()
	current, open := p.sessions[claims.RoomID]
	p.mu.Unlock()
	if !open || current != claims.SessionID {
		return Claims{}, fmt.Errorf("%w: session closed", ErrInvalidToken)
	}

	return Claims{
		SessionID: claims.SessionID,
		RoomID:    claims.RoomID,
		MemberID:  memberID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
