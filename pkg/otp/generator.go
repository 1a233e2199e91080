// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package otp

import (
	"crypto/rand"
	"fmt"
	"io"
)

// DefaultLength is the number of digits in a code.
const DefaultLength = 6

// Generator produces candidate codes.
type Generator interface {
	Generate() (string, error)
}

// DigitGenerator produces uniformly random decimal codes.
type DigitGenerator struct {
	// Length defaults to DefaultLength.
	Length int
	// Reader defaults to crypto/rand.Reader.
	Reader io.Reader
}

// Generate implements Generator.
func (g DigitGenerator) Generate() (string, error) {
	n := g.Length
	if n <= 0 {
		n = DefaultLength
	}
	r := g.Reader
	if r == nil {
		r = rand.Reader
	}

	code := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(code) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			// 250 is the largest multiple of 10 that fits in a byte.
			if b >= 250 {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == n {
				break
			}
		}
	}
	return string(code), nil
}
