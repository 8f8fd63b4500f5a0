package user

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Repository defines the data access methods for identity records.
type Repository interface {
	Create(u *User) error
	GetByID(id int64) (*User, error)
	GetByUsername(username string) (*User, error)
	GetByEmail(email string) (*User, error)
	Update(u *User) error
	ListAll() ([]*User, error)
}

// Service handles identity business logic: registration, email change with
// confirmation, password change and reset.
type Service struct {
	repo        Repository
	mailer      Mailer
	tokenSecret []byte
	bcryptCost  int
	logger      *slog.Logger
}

func NewService(repo Repository, mailer Mailer, tokenSecret string, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:        repo,
		mailer:      mailer,
		tokenSecret: []byte(tokenSecret),
		bcryptCost:  bcryptCost,
		logger:      logger,
	}
}

// LookupByUsername resolves a username for services that only need the id
// and mail address, e.g. when sharing a project.
func (s *Service) LookupByUsername(username string) (int64, string, error) {
	u, err := s.repo.GetByUsername(username)
	if err != nil {
		return 0, "", err
	}
	return u.ID, u.Email, nil
}

// Register creates a new user with a bcrypt password hash.
func (s *Service) Register(dto RegisterDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if existing, _ := s.repo.GetByUsername(dto.Username); existing != nil {
		return nil, ErrAlreadyExists
	}
	if existing, _ := s.repo.GetByEmail(dto.Email); existing != nil {
		return nil, ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := &User{
		Username:     dto.Username,
		Email:        dto.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(u); err != nil {
		s.logger.Error("failed to create user", "error", err, "username", dto.Username)
		return nil, err
	}

	s.logger.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (s *Service) GetByID(id int64) (*User, error) {
	return s.repo.GetByID(id)
}

func (s *Service) ListAll() ([]*User, error) {
	return s.repo.ListAll()
}

// RequestEmailChange stores the new address in the pending field and mails a
// confirmation token. The active email stays untouched until confirmation.
func (s *Service) RequestEmailChange(userID int64, dto ChangeEmailDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		return ErrWrongPassword
	}

	if taken, _ := s.repo.GetByEmail(dto.NewEmail); taken != nil && taken.ID != userID {
		return ErrAlreadyExists
	}

	u.EmailChange = &dto.NewEmail
	u.UpdatedAt = time.Now()
	if err := s.repo.Update(u); err != nil {
		return err
	}

	token := s.emailChangeToken(u.Username, dto.NewEmail)
	if err := s.mailer.Send(dto.NewEmail, "Confirm your new email address",
		fmt.Sprintf("Use this token to confirm your new address: %s", token)); err != nil {
		s.logger.Error("failed to send confirmation mail", "error", err, "user_id", userID)
	}

	s.logger.Info("email change requested", "user_id", userID)
	return nil
}

// ConfirmEmailChange swaps the pending address into place when the token
// matches.
func (s *Service) ConfirmEmailChange(userID int64, dto ConfirmEmailDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrNotFound
	}
	if u.EmailChange == nil {
		return ErrBadToken
	}

	expected := s.emailChangeToken(u.Username, *u.EmailChange)
	if !hmac.Equal([]byte(expected), []byte(dto.Token)) {
		return ErrBadToken
	}

	u.Email = *u.EmailChange
	u.EmailChange = nil
	u.UpdatedAt = time.Now()
	if err := s.repo.Update(u); err != nil {
		return err
	}

	s.logger.Info("email change confirmed", "user_id", userID, "email", u.Email)
	return nil
}

// ChangePassword replaces the password hash after verifying the current one.
func (s *Service) ChangePassword(userID int64, dto ChangePasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.NewPassword), s.bcryptCost)
	if err != nil {
		return err
	}

	u.PasswordHash = string(hash)
	u.UpdatedAt = time.Now()
	if err := s.repo.Update(u); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// RequestPasswordReset stores a fresh salt on the account and mails a token
// derived from it. Always reports success to the caller so the endpoint does
// not leak which addresses exist.
func (s *Service) RequestPasswordReset(dto PasswordResetRequestDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.GetByEmail(dto.Email)
	if err != nil {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}

	salt, err := randomHex(16)
	if err != nil {
		return err
	}

	u.ResetSalt = &salt
	u.UpdatedAt = time.Now()
	if err := s.repo.Update(u); err != nil {
		return err
	}

	token := s.resetToken(u.Username, salt)
	if err := s.mailer.Send(u.Email, "Password reset",
		fmt.Sprintf("Use this token to reset your password: %s", token)); err != nil {
		s.logger.Error("failed to send reset mail", "error", err, "user_id", u.ID)
	}

	s.logger.Info("password reset requested", "user_id", u.ID)
	return nil
}

// ResetPassword verifies the token against the stored salt, sets the new
// password and clears the salt so the token is single-use.
func (s *Service) ResetPassword(dto PasswordResetDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.GetByEmail(dto.Email)
	if err != nil {
		return ErrBadToken
	}
	if u.ResetSalt == nil {
		return ErrBadToken
	}

	expected := s.resetToken(u.Username, *u.ResetSalt)
	if !hmac.Equal([]byte(expected), []byte(dto.Token)) {
		return ErrBadToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.NewPassword), s.bcryptCost)
	if err != nil {
		return err
	}

	u.PasswordHash = string(hash)
	u.ResetSalt = nil
	u.UpdatedAt = time.Now()
	if err := s.repo.Update(u); err != nil {
		return err
	}

	s.logger.Info("password reset completed", "user_id", u.ID)
	return nil
}

func (s *Service) emailChangeToken(username, newEmail string) string {
	return s.hmacToken("email-change", username, newEmail)
}

func (s *Service) resetToken(username, salt string) string {
	return s.hmacToken("password-reset", username, salt)
}

func (s *Service) hmacToken(parts ...string) string {
	mac := hmac.New(sha256.New, s.tokenSecret)
	for _, p := range parts {
		mac.Write([]byte(p))
		mac.Write([]byte{0})
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
