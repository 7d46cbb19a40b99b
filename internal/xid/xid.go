package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(id.String(), "-", ""))
}

// IdempotencyKey returns a fresh client-side checkout key.
func IdempotencyKey() string {
	return "idem-" + uuid.NewString()
}
