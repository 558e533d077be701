package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"campuscanvas/pkg/domain"
)

const base64Marker = ";base64,"

var errMalformed = errors.New("malformed data URI")

// Encode renders data as a base64 data URI.
func Encode(contentType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:") + len(contentType) + len(base64Marker) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(contentType)
	b.WriteString(base64Marker)
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// Decode returns the media type and payload of a base64 data URI.
func Decode(uri string) (string, []byte, error) {
	contentType, payload, err := split(uri)
	if err != nil {
		return "", nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return contentType, data, nil
}

// DecodedSize returns the payload size of a data URI without decoding it.
func DecodedSize(uri string) (int64, error) {
	_, payload, err := split(uri)
	if err != nil {
		return 0, err
	}
	if len(payload)%4 != 0 {
		return 0, errMalformed
	}
	pad := len(payload) - len(strings.TrimRight(payload, "="))
	if pad > 2 {
		return 0, errMalformed
	}
	return int64(base64.StdEncoding.DecodedLen(len(payload)) - pad), nil
}

func split(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", errMalformed
	}
	contentType, payload, ok := strings.Cut(rest, base64Marker)
	if !ok || contentType == "" {
		return "", "", errMalformed
	}
	return contentType, payload, nil
}

// ValidateGallery checks an already encoded gallery against limits.
func ValidateGallery(gallery []string, limits Limits) error {
	limits = limits.normalized()
	if len(gallery) > limits.MaxFiles {
		return &domain.ValidationError{
			Code:    domain.CodeTooManyFiles,
			Field:   "gallery",
			Message: fmt.Sprintf("too many files: max %d images allowed, got %d", limits.MaxFiles, len(gallery)),
			Limit:   int64(limits.MaxFiles),
			Total:   int64(len(gallery)),
		}
	}
	var total int64
	for i, item := range gallery {
		size, err := DecodedSize(item)
		if err != nil {
			return domain.NewValidationError(domain.CodeInvalidGallery, "gallery", "gallery item %d is not a base64 data URI", i)
		}
		total += size
	}
	if total > limits.MaxTotalBytes {
		return &domain.ValidationError{
			Code:    domain.CodePayloadTooLarge,
			Field:   "gallery",
			Message: fmt.Sprintf("payload too large: gallery holds %d bytes, limit is %d KiB", total, limits.MaxTotalBytes/1024),
			Limit:   limits.MaxTotalBytes,
			Total:   total,
		}
	}
	return nil
}
