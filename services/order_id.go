package services

import (
	"fmt"
	"strconv"
	"strings"
)

const OrderIDPrefix = "AvionOID-"

// NextOrderID increments the numeric suffix of last, zero-padded to two
// digits. An empty or malformed last id starts the sequence at 01.
func NextOrderID(last string) string {
	n := 0
	if i := strings.LastIndex(last, "-"); i >= 0 {
		if v, err := strconv.Atoi(last[i+1:]); err == nil && v > 0 {
			n = v
		}
	}
	return fmt.Sprintf("%s%02d", OrderIDPrefix, n+1)
}
