package orders

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Order numbers look like ORD-202608-0042 and restart at 0001 each calendar
// month by virtue of the prefix changing. The fixed-width suffix makes a
// lexicographic sort over the numeric tail valid.
//
// Allocation is read-then-compute and deliberately not atomic: two
// concurrent creations in the same month can compute the same number. The
// repository's unique constraint on order_number is the backstop, and the
// creation transaction retries allocation once on a collision. A counter
// table with an atomic increment is the upgrade path if throughput ever
// makes that retry loop noisy.

const numberSuffixWidth = 4

// NumberPrefix returns the ORD-<YYYY><MM> prefix for t.
func NumberPrefix(t time.Time) string {
	return fmt.Sprintf("ORD-%04d%02d", t.Year(), int(t.Month()))
}

// NextNumber computes the order number following last within prefix. last is
// the highest existing number carrying the prefix, or "" when the month has
// no orders yet.
func NextNumber(prefix, last string) (string, error) {
	next := 1
	if last != "" {
		idx := strings.LastIndex(last, "-")
		if idx < 0 || !strings.HasPrefix(last, prefix) {
			return "", fmt.Errorf("malformed order number %q for prefix %q", last, prefix)
		}
		n, err := strconv.Atoi(last[idx+1:])
		if err != nil {
			return "", fmt.Errorf("malformed order number %q: %w", last, err)
		}
		next = n + 1
	}
	return fmt.Sprintf("%s-%0*d", prefix, numberSuffixWidth, next), nil
}
