package store

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Record id prefixes. Ids are "<prefix>-" followed by idSuffixLength
// lowercase base36 characters.
const (
	ArticleIDPrefix    = "ar"
	AttachmentIDPrefix = "at"
	OrphanIDPrefix     = "of"
)

const (
	idAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	idSuffixLength = 6
	idMaxAttempts  = 20
	// Largest multiple of len(idAlphabet) below 256; bytes above it are
	// redrawn so every character is equally likely.
	idByteCeiling = 252
)

// ErrIDSpaceExhausted is returned when every generated candidate collided.
var ErrIDSpaceExhausted = errors.New("unable to generate unique id")

// GenerateID draws "<prefix>-xxxxxx" ids until exists reports a free one.
// A nil exists accepts the first candidate.
func GenerateID(prefix string, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}
	for attempt := 0; attempt < idMaxAttempts; attempt++ {
		suffix, err := randomSuffix(idSuffixLength)
		if err != nil {
			return "", err
		}
		candidate := prefix + "-" + suffix
		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", prefix, ErrIDSpaceExhausted)
}

func GenerateArticleID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(ArticleIDPrefix, exists)
}

func GenerateAttachmentID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(AttachmentIDPrefix, exists)
}

func GenerateOrphanID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(OrphanIDPrefix, exists)
}

func randomSuffix(length int) (string, error) {
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= idByteCeiling {
				continue
			}
			out = append(out, idAlphabet[int(b)%len(idAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
