package service

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
	"time"
)

const (
	trackingPrefix   = "BB"
	trackingLength   = 8
	trackingAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewTrackingNumber returns "BB" followed by 8 random characters from an
// alphabet without look-alike glyphs (no I, O, 0, 1).
func NewTrackingNumber() (string, error) {
	var raw [trackingLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, 0, len(trackingPrefix)+trackingLength)
	out = append(out, trackingPrefix...)
	for _, b := range raw {
		out = append(out, trackingAlphabet[int(b)%len(trackingAlphabet)])
	}
	return string(out), nil
}

const (
	minShelfLifeDays = 35
	maxShelfLifeDays = 42
)

// ExpiryDate is creation day plus a pseudo-random shelf life in [35, 42] days.
// The same createdAt and seed always give the same date.
func ExpiryDate(createdAt time.Time, seed uint64) time.Time {
	r := mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	days := minShelfLifeDays + r.IntN(maxShelfLifeDays-minShelfLifeDays+1)
	return dateOf(createdAt).AddDate(0, 0, days)
}
