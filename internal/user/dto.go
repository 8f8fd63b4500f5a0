package user

import "strings"

// ValidationError represents a simple validation error from DTO validation.
type ValidationError struct {
	Msg string
}

func (v ValidationError) Error() string { return v.Msg }

type RegisterDTO struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d RegisterDTO) Validate() error {
	if strings.TrimSpace(d.Username) == "" {
		return ValidationError{Msg: "username is required"}
	}
	if strings.ContainsAny(d.Username, "/\\ ") {
		return ValidationError{Msg: "username must not contain spaces or path separators"}
	}
	if !strings.Contains(d.Email, "@") {
		return ValidationError{Msg: "a valid email is required"}
	}
	if len(d.Password) < 8 {
		return ValidationError{Msg: "password must be at least 8 characters"}
	}
	return nil
}

type ChangeEmailDTO struct {
	NewEmail string `json:"new_email"`
	Password string `json:"password"`
}

func (d ChangeEmailDTO) Validate() error {
	if !strings.Contains(d.NewEmail, "@") {
		return ValidationError{Msg: "a valid email is required"}
	}
	if d.Password == "" {
		return ValidationError{Msg: "password is required"}
	}
	return nil
}

type ConfirmEmailDTO struct {
	Token string `json:"token"`
}

func (d ConfirmEmailDTO) Validate() error {
	if d.Token == "" {
		return ValidationError{Msg: "token is required"}
	}
	return nil
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (d ChangePasswordDTO) Validate() error {
	if d.CurrentPassword == "" {
		return ValidationError{Msg: "current_password is required"}
	}
	if len(d.NewPassword) < 8 {
		return ValidationError{Msg: "new password must be at least 8 characters"}
	}
	return nil
}

type PasswordResetRequestDTO struct {
	Email string `json:"email"`
}

func (d PasswordResetRequestDTO) Validate() error {
	if !strings.Contains(d.Email, "@") {
		return ValidationError{Msg: "a valid email is required"}
	}
	return nil
}

type PasswordResetDTO struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (d PasswordResetDTO) Validate() error {
	if !strings.Contains(d.Email, "@") {
		return ValidationError{Msg: "a valid email is required"}
	}
	if d.Token == "" {
		return ValidationError{Msg: "token is required"}
	}
	if len(d.NewPassword) < 8 {
		return ValidationError{Msg: "new password must be at least 8 characters"}
	}
	return nil
}
