package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSeparator keeps distinct fields from colliding in fingerprint input.
const fieldSeparator = "\x1f"

// HashPhoto returns the exact-content hash of an uploaded photo, used for the
// 24-hour dedup lookup.
func HashPhoto(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintRequest derives the content fingerprint of a whole request:
// photo content plus every context field that changes the generated result.
func FingerprintRequest(photoHash, occasion, gender, weather, genre, skinTone string) string {
	return fingerprint(photoHash, occasion, gender, weather, genre, skinTone)
}

// FingerprintOutfit derives the stable identity of an outfit over its salient
// fields, used by the anti-repetition cache.
func FingerprintOutfit(title string, palette, items []string) string {
	return fingerprint(title, strings.Join(palette, ","), strings.Join(items, ","))
}

// FingerprintImage keys the image cache by prompt plus color set so
// visually-identical images are generated once.
func FingerprintImage(prompt string, colors []string) string {
	return fingerprint(prompt, strings.Join(colors, ","))
}

func fingerprint(fields ...string) string {
	h := sha256.New()
	for i, field := range fields {
		if i > 0 {
			h.Write([]byte(fieldSeparator))
		}
		h.Write([]byte(field))
	}

	return hex.EncodeToString(h.Sum(nil))
}
