// README: Rider account service: OTP registration, login and verification.
package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gocab/internal/auth"
	"gocab/internal/types"
)

var (
	ErrExists      = errors.New("user already exists")
	ErrBadRequest  = errors.New("bad request")
	ErrOTPRejected = errors.New("otp verification failed")
)

type Service struct {
	store  Store
	otp    OTPSender
	tokens *auth.Tokens
	log    *slog.Logger
}

func NewService(store Store, otp OTPSender, tokens *auth.Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, otp: otp, tokens: tokens, log: log}
}

type RegisterCommand struct {
	Name  string
	Phone string
	Email string
}

// Register creates an unverified account and fires the first OTP. The
// returned order id addresses this OTP on verify and resend.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (types.ID, string, error) {
	if cmd.Name == "" || cmd.Phone == "" {
		return "", "", ErrBadRequest
	}
	if _, err := s.store.GetByPhone(ctx, cmd.Phone); err == nil {
		return "", "", ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return "", "", err
	}

	orderID, err := s.otp.Send(ctx, cmd.Phone)
	if err != nil {
		return "", "", err
	}
	u := &User{
		ID:        types.ID(uuid.NewString()),
		Name:      cmd.Name,
		Phone:     cmd.Phone,
		Email:     cmd.Email,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return "", "", err
	}
	return u.ID, orderID, nil
}

// Login starts an OTP round for an existing account.
func (s *Service) Login(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", ErrBadRequest
	}
	if _, err := s.store.GetByPhone(ctx, phone); err != nil {
		return "", err
	}
	return s.otp.Send(ctx, phone)
}

// Verify checks the typed OTP with the provider, marks the account verified
// and issues the session token.
func (s *Service) Verify(ctx context.Context, phone, orderID, otp string) (*User, string, error) {
	if phone == "" || orderID == "" || otp == "" {
		return nil, "", ErrBadRequest
	}
	u, err := s.store.GetByPhone(ctx, phone)
	if err != nil {
		return nil, "", err
	}
	ok, err := s.otp.Verify(ctx, phone, orderID, otp)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrOTPRejected
	}
	if !u.Verified {
		if err := s.store.MarkVerified(ctx, u.ID); err != nil {
			return nil, "", err
		}
		u.Verified = true
	}
	token, err := s.tokens.Generate(u.ID, auth.RoleRider)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *Service) Resend(ctx context.Context, orderID string) error {
	if orderID == "" {
		return ErrBadRequest
	}
	return s.otp.Resend(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*User, error) {
	return s.store.Get(ctx, id)
}

// DisplayName feeds the offer payload shown to drivers.
func (s *Service) DisplayName(ctx context.Context, riderID types.ID) (string, error) {
	u, err := s.store.Get(ctx, riderID)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}
