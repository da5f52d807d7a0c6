package service

import "unicode"

// PasswordPolicy gates new passwords on length and character variety.
type PasswordPolicy struct {
	MinLength     int
	RequireLetter bool
	RequireDigit  bool
}

var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:     8,
	RequireLetter: true,
	RequireDigit:  true,
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return ErrPasswordTooWeak
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if p.RequireLetter && !hasLetter {
		return ErrPasswordTooWeak
	}
	if p.RequireDigit && !hasDigit {
		return ErrPasswordTooWeak
	}
	return nil
}
