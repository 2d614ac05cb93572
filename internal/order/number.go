package order

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	numberPrefix    = "ORD"
	numberSuffixLen = 4
	base36Alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewNumber builds a customer-facing order number such as ORD-M1ZQ3K2L-7XQ4.
func NewNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString(numberPrefix)
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))
	b.WriteByte('-')
	for i := 0; i < numberSuffixLen; i++ {
		b.WriteByte(base36Alphabet[rand.IntN(len(base36Alphabet))])
	}
	return b.String()
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID tells internal ids apart from order numbers.
func IsUUID(s string) bool {
	return uuidPattern.MatchString(s)
}
