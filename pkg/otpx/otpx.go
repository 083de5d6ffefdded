// Package otpx wraps github.com/pquerna/otp with the fixed parameters the MFA
// core uses for RFC 6238 codes and enrollment URIs.
package otpx

import (
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

// Defaults for a freshly constructed Engine.
const (
	DefaultDigits     = 6
	DefaultPeriod     = 30
	DefaultSkew       = 2
	DefaultAlgorithm  = "SHA1"
	DefaultSecretSize = 20 // 160 bits

	// MaxLabelLength bounds an account label in runes.
	MaxLabelLength = 128
)

var (
	// ErrMalformedSecret is returned when a secret is empty or not valid base32.
	ErrMalformedSecret = errors.New("otpx: malformed secret")
	// ErrInvalidConfig is returned for unsupported digits or algorithm names.
	ErrInvalidConfig = errors.New("otpx: invalid configuration")
	// ErrInvalidLabel is returned for an account label authenticator apps
	// would misparse.
	ErrInvalidLabel = errors.New("otpx: invalid label")
)

// Engine generates and validates time-stepped codes.
type Engine struct {
	Issuer     string
	Digits     int
	Period     uint
	Skew       uint
	Algorithm  string
	SecretSize uint

	// Rand feeds secret generation. nil means crypto/rand.
	Rand io.Reader
}

// New returns an Engine with default parameters for issuer.
func New(issuer string) *Engine {
	return &Engine{
		Issuer:     issuer,
		Digits:     DefaultDigits,
		Period:     DefaultPeriod,
		Skew:       DefaultSkew,
		Algorithm:  DefaultAlgorithm,
		SecretSize: DefaultSecretSize,
	}
}

// Check reports whether the engine parameters are usable.
func (e *Engine) Check() error {
	if _, err := e.digits(); err != nil {
		return err
	}
	if _, err := e.algorithm(); err != nil {
		return err
	}
	if e.Period == 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if e.SecretSize < DefaultSecretSize {
		return fmt.Errorf("%w: secret size must be at least %d bytes", ErrInvalidConfig, DefaultSecretSize)
	}
	if e.Issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if strings.Contains(e.Issuer, ":") {
		return fmt.Errorf("%w: issuer must not contain ':'", ErrInvalidConfig)
	}
	return nil
}

// CheckLabel rejects account labels that are empty, longer than
// MaxLabelLength, or contain the ':' that separates issuer from account in
// an otpauth URI.
func CheckLabel(label string) error {
	switch {
	case strings.TrimSpace(label) == "":
		return fmt.Errorf("%w: label is empty", ErrInvalidLabel)
	case !utf8.ValidString(label):
		return fmt.Errorf("%w: label is not valid UTF-8", ErrInvalidLabel)
	case utf8.RuneCountInString(label) > MaxLabelLength:
		return fmt.Errorf("%w: label exceeds %d characters", ErrInvalidLabel, MaxLabelLength)
	case strings.Contains(label, ":"):
		return fmt.Errorf("%w: label must not contain ':'", ErrInvalidLabel)
	}
	return nil
}

// NewSecret returns a new random base32 secret (no padding) bound to label.
func (e *Engine) NewSecret(label string) (string, error) {
	key, err := e.key(label, nil)
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// Generate returns the code for secret at the time step containing at.
func (e *Engine) Generate(secret string, at time.Time) (string, error) {
	opts, err := e.validateOpts(0)
	if err != nil {
		return "", err
	}
	if err := checkSecret(secret); err != nil {
		return "", err
	}

	code, err := totp.GenerateCodeCustom(secret, at, opts)
	if err != nil {
		if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
			return "", ErrMalformedSecret
		}
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return code, nil
}

// Validate reports whether code matches secret at any step within ±Skew
// of at. A code of the wrong length is a mismatch, not an error.
func (e *Engine) Validate(secret, code string, at time.Time) (bool, error) {
	opts, err := e.validateOpts(e.Skew)
	if err != nil {
		return false, err
	}
	if err := checkSecret(secret); err != nil {
		return false, err
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, opts)
	switch {
	case err == nil:
		return ok, nil
	case errors.Is(err, otp.ErrValidateInputInvalidLength):
		return false, nil
	case errors.Is(err, otp.ErrValidateSecretInvalidBase32):
		return false, ErrMalformedSecret
	default:
		return false, fmt.Errorf("failed to validate code: %w", err)
	}
}

// EnrollmentURI returns the otpauth:// URI authenticator apps consume.
func (e *Engine) EnrollmentURI(secret, label string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := e.key(label, raw)
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// key builds the library key for label. A nil secret draws a fresh one
// from Rand.
func (e *Engine) key(label string, secret []byte) (*otp.Key, error) {
	if err := CheckLabel(label); err != nil {
		return nil, err
	}
	digits, err := e.digits()
	if err != nil {
		return nil, err
	}
	alg, err := e.algorithm()
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: label,
		Period:      e.Period,
		SecretSize:  e.SecretSize,
		Secret:      secret,
		Digits:      digits,
		Algorithm:   alg,
		Rand:        e.Rand,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key, nil
}

// QRCodePNG renders uri as a PNG image of size×size pixels.
func QRCodePNG(uri string, size int) ([]byte, error) {
	img, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return img, nil
}

func (e *Engine) validateOpts(skew uint) (totp.ValidateOpts, error) {
	digits, err := e.digits()
	if err != nil {
		return totp.ValidateOpts{}, err
	}
	alg, err := e.algorithm()
	if err != nil {
		return totp.ValidateOpts{}, err
	}
	if e.Period == 0 {
		return totp.ValidateOpts{}, fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	return totp.ValidateOpts{
		Period:    e.Period,
		Skew:      skew,
		Digits:    digits,
		Algorithm: alg,
	}, nil
}

func (e *Engine) digits() (otp.Digits, error) {
	switch e.Digits {
	case 6:
		return otp.DigitsSix, nil
	case 8:
		return otp.DigitsEight, nil
	default:
		return 0, fmt.Errorf("%w: unsupported digits %d", ErrInvalidConfig, e.Digits)
	}
}

func (e *Engine) algorithm() (otp.Algorithm, error) {
	switch strings.ToUpper(e.Algorithm) {
	case "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, e.Algorithm)
	}
}

// checkSecret rejects secrets the library would silently accept, such as
// the empty string, which decodes to a zero-length HMAC key.
func checkSecret(secret string) error {
	_, err := decodeSecret(secret)
	return err
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	if s == "" {
		return nil, ErrMalformedSecret
	}
	if n := len(s) % 8; n != 0 {
		s += strings.Repeat("=", 8-n)
	}
	raw, err := base32.StdEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrMalformedSecret
	}
	return raw, nil
}
