package security

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpSecretBytes = 20
	totpPeriod      = 30
	totpSkew        = 1
	totpDigits      = 6
)

var ErrInvalidMFALabel = errors.New("issuer and account name must not contain ':'")

// MFAProvision carries the base32 secret and the otpauth:// URI handed to
// the enrolling client.
type MFAProvision struct {
	Secret string
	URI    string
}

// GenerateMFASecret provisions a random 160-bit TOTP secret. The ':' check
// mirrors the otpauth label grammar, where it separates issuer from account.
func GenerateMFASecret(issuer, accountName string) (*MFAProvision, error) {
	account := strings.TrimSpace(accountName)
	if strings.Contains(issuer, ":") || strings.Contains(account, ":") {
		return nil, ErrInvalidMFALabel
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		SecretSize:  totpSecretBytes,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}
	return &MFAProvision{Secret: key.Secret(), URI: key.URL()}, nil
}

// VerifyTOTP checks a submitted code against the stored base32 secret at the
// given instant, allowing one 30-second step of clock skew either way.
// Codes that are not exactly six ASCII digits are rejected before any
// cryptographic work.
func VerifyTOTP(secret, code string, at time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != totpDigits || !isASCIIDigits(trimmed) {
		return false
	}
	ok, err := totp.ValidateCustom(trimmed, normalizeTOTPSecret(secret), at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func normalizeTOTPSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}

func isASCIIDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
