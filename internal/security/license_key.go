package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	licenseKeySegments   = 4
	licenseKeySegmentLen = 5
	// Each segment is cut from the hex encoding of this many random bytes.
	licenseKeySegmentBytes = 4
)

var licenseKeyPattern = regexp.MustCompile(`^[0-9A-F]{5}(-[0-9A-F]{5}){3}$`)

// GenerateLicenseKey returns a key shaped like A1B2C-3D4E5-F6A7B-8C9D0.
// Uniqueness is enforced by the registry, not here.
func GenerateLicenseKey() (string, error) {
	return generateLicenseKey(rand.Reader)
}

func generateLicenseKey(r io.Reader) (string, error) {
	segments := make([]string, 0, licenseKeySegments)
	buf := make([]byte, licenseKeySegmentBytes)
	for i := 0; i < licenseKeySegments; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		segment := strings.ToUpper(hex.EncodeToString(buf))[:licenseKeySegmentLen]
		segments = append(segments, segment)
	}
	return strings.Join(segments, "-"), nil
}

func IsLicenseKey(s string) bool {
	return licenseKeyPattern.MatchString(s)
}
