/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package auth issues and verifies the compact, HMAC-signed bearer
// tokens the API server accepts. Claims are deliberately minimal: a
// subject and an expiry, matching what the authorization layer (coarse
// Role lookup by subject) actually needs.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/spf13/pflag"
)

// ErrTokenVerification is returned when a token fails to parse, fails
// signature verification, or fails claim validation (expired, not yet
// valid).
var ErrTokenVerification = errors.New("failed to verify token")

const (
	defaultSecretPath = "/var/lib/secrets/skyshift/token/key"
	defaultExpiry     = 24 * time.Hour
)

// Options configures the Issuer via flags.
type Options struct {
	// SecretPath is a file containing the raw HMAC signing key. In
	// development, when the file does not exist, a random key is
	// generated in-process (tokens then only verify within this process
	// lifetime).
	SecretPath string

	// Expiry caps how long an issued token is valid for.
	Expiry time.Duration
}

// AddFlags registers flags with the provided flag set.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.SecretPath, "token-secret-path", defaultSecretPath, "File containing the HMAC key used to sign and verify bearer tokens.")
	f.DurationVar(&o.Expiry, "token-expiry", defaultExpiry, "Maximum bearer token lifetime.")
}

// Claims is the application's token payload: who, and until when.
type Claims struct {
	Subject string    `json:"sub"`
	Expiry  time.Time `json:"exp"`
}

// Issuer signs and verifies bearer tokens with a single shared HMAC key.
type Issuer struct {
	key    []byte
	expiry time.Duration
}

// NewIssuer loads the signing key from options.SecretPath, generating an
// ephemeral one if the file is absent.
func NewIssuer(options *Options) (*Issuer, error) {
	key, err := os.ReadFile(options.SecretPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading token secret: %w", err)
		}

		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating ephemeral token secret: %w", err)
		}
	}

	return &Issuer{key: key, expiry: options.Expiry}, nil
}

// Issue mints a new compact JWS for subject, expiring no later than
// i.expiry from now.
func (i *Issuer) Issue(subject string) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: i.key}, nil)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	claims := jwt.Claims{
		Subject: subject,
		Expiry:  jwt.NewNumericDate(time.Now().Add(i.expiry)),
	}

	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return token, nil
}

// Verify parses and checks a compact JWS, returning the subject it was
// issued for.
func (i *Issuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenVerification, err)
	}

	var claims jwt.Claims

	if err := parsed.Claims(i.key, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenVerification, err)
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{Time: time.Now()}, time.Minute); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenVerification, err)
	}

	out := &Claims{Subject: claims.Subject}

	if claims.Expiry != nil {
		out.Expiry = claims.Expiry.Time()
	}

	return out, nil
}
