package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	otpMin = 100000
	otpMax = 999999
)

var otpSpan = big.NewInt(otpMax - otpMin + 1)

// IssueOtp returns a 6-digit code drawn uniformly from [100000, 999999]
// using crypto/rand, and its expiry.
func IssueOtp(now time.Time, ttl time.Duration) (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, otpSpan)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), now.Add(ttl), nil
}
