package booking

import (
	"crypto/rand"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// idGenerator mints human-facing booking references GLW-<base36 millis>-<4 base36>.
// The millisecond part is strictly increasing within a process, so two
// references from one generator never collide.
type idGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
	rand io.Reader
}

func newIDGenerator(now func() time.Time) *idGenerator {
	return &idGenerator{now: now, rand: rand.Reader}
}

func (g *idGenerator) next() (string, error) {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	var b [4]byte
	if _, err := io.ReadFull(g.rand, b[:]); err != nil {
		return "", err
	}
	suffix := make([]byte, len(b))
	for i, v := range b {
		suffix[i] = base36[int(v)%len(base36)]
	}
	return "GLW-" + strings.ToUpper(strconv.FormatInt(ms, 36)) + "-" + string(suffix), nil
}
