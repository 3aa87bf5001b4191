package tenant

import (
	"regexp"
	"strconv"

	"voice2note-be/internal/pkg/apperror"
)

const RefPrefix = "tenant_"

// Leading zeros are rejected so that one tenant has exactly one spelling.
var refPattern = regexp.MustCompile(`^tenant_[1-9][0-9]*$`)

// ID is the opaque numeric tenant identifier.
type ID int64

func (id ID) String() string {
	return RefPrefix + strconv.FormatInt(int64(id), 10)
}

func (id ID) Valid() bool {
	return id > 0
}

// ParseRef validates a tenant reference such as "tenant_12" and returns its ID.
// It must run before the reference is used to select a namespace.
func ParseRef(ref string) (ID, error) {
	if !refPattern.MatchString(ref) {
		return 0, apperror.Validation("invalid tenant reference %q", ref)
	}
	n, err := strconv.ParseInt(ref[len(RefPrefix):], 10, 64)
	if err != nil {
		return 0, apperror.Validation("invalid tenant reference %q", ref)
	}
	return ID(n), nil
}

// ParseClaim validates an untyped value (JWT claim, JSON field) as a tenant reference.
func ParseClaim(v interface{}) (ID, error) {
	s, ok := v.(string)
	if !ok {
		return 0, apperror.Validation("tenant reference missing")
	}
	return ParseRef(s)
}

// FromInt validates a raw numeric identifier, e.g. from a CLI flag.
func FromInt(n int64) (ID, error) {
	if n <= 0 {
		return 0, apperror.Validation("invalid tenant id %d", n)
	}
	return ID(n), nil
}
