// Package policy loads the business policy file: cache TTLs, rate-limit
// budgets and the daily booking slot list.
package policy

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/ratelimit"

	"gopkg.in/yaml.v3"
)

// Policy is the parsed policy file.
type Policy struct {
	Cache      CacheConfig            `yaml:"cache"`
	RateLimits map[string]LimitConfig `yaml:"rate_limits"`
	Slots      []string               `yaml:"slots"`
}

// CacheConfig overrides namespace TTLs.
type CacheConfig struct {
	TTL map[string]time.Duration `yaml:"ttl"`
}

// LimitConfig is one rate-limit budget.
type LimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// DefaultSlots is the fixed daily slot list: 09:00 to 12:30 and 14:00 to 18:30
// in half-hour steps.
func DefaultSlots() []string {
	out := make([]string, 0, 18)
	for _, span := range [][2]int{{9 * 60, 12*60 + 30}, {14 * 60, 18*60 + 30}} {
		for m := span[0]; m <= span[1]; m += 30 {
			out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
		}
	}
	return out
}

// Default returns the stock policy.
func Default() *Policy {
	return &Policy{
		Cache: CacheConfig{TTL: cache.DefaultTTLs()},
		RateLimits: map[string]LimitConfig{
			ratelimit.BookingPolicy.Name:    {Max: ratelimit.BookingPolicy.Max, Window: ratelimit.BookingPolicy.Window},
			ratelimit.ContactPolicy.Name:    {Max: ratelimit.ContactPolicy.Max, Window: ratelimit.ContactPolicy.Window},
			ratelimit.MembershipPolicy.Name: {Max: ratelimit.MembershipPolicy.Max, Window: ratelimit.MembershipPolicy.Window},
			ratelimit.CallbackPolicy.Name:   {Max: ratelimit.CallbackPolicy.Max, Window: ratelimit.CallbackPolicy.Window},
		},
		Slots: DefaultSlots(),
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Policy, error) {
	p := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var file Policy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	p.merge(file)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) merge(o Policy) {
	for ns, ttl := range o.Cache.TTL {
		p.Cache.TTL[ns] = ttl
	}
	for name, l := range o.RateLimits {
		cur := p.RateLimits[name]
		if l.Max != 0 {
			cur.Max = l.Max
		}
		if l.Window != 0 {
			cur.Window = l.Window
		}
		p.RateLimits[name] = cur
	}
	if len(o.Slots) > 0 {
		p.Slots = o.Slots
	}
}

var slotRE = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validate rejects non-positive values, unknown rate-limit names and
// malformed or duplicate slots.
func (p *Policy) Validate() error {
	for ns, ttl := range p.Cache.TTL {
		if ttl <= 0 {
			return fmt.Errorf("policy: cache.ttl.%s must be positive", ns)
		}
	}
	for name, l := range p.RateLimits {
		if _, ok := basePolicy(name); !ok {
			return fmt.Errorf("policy: unknown rate limit %q", name)
		}
		if l.Max <= 0 || l.Window <= 0 {
			return fmt.Errorf("policy: rate_limits.%s needs positive max and window", name)
		}
	}
	if len(p.Slots) == 0 {
		return errors.New("policy: slots must not be empty")
	}
	seen := make(map[string]struct{}, len(p.Slots))
	for _, s := range p.Slots {
		if !slotRE.MatchString(s) {
			return fmt.Errorf("policy: slot %q is not HH:MM", s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("policy: duplicate slot %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

func basePolicy(name string) (ratelimit.Policy, bool) {
	switch name {
	case ratelimit.BookingPolicy.Name:
		return ratelimit.BookingPolicy, true
	case ratelimit.ContactPolicy.Name:
		return ratelimit.ContactPolicy, true
	case ratelimit.MembershipPolicy.Name:
		return ratelimit.MembershipPolicy, true
	case ratelimit.CallbackPolicy.Name:
		return ratelimit.CallbackPolicy, true
	}
	return ratelimit.Policy{}, false
}

// Limit returns the named rate-limit policy with any configured overrides.
// Identity kind is fixed per name.
func (p *Policy) Limit(name string) ratelimit.Policy {
	base, ok := basePolicy(name)
	if !ok {
		return ratelimit.Policy{}
	}
	if l, ok := p.RateLimits[name]; ok {
		base.Max = l.Max
		base.Window = l.Window
	}
	return base
}

// Limits bundles the resolved policies the intake and booking flows use.
type Limits struct {
	Booking    ratelimit.Policy
	Contact    ratelimit.Policy
	Membership ratelimit.Policy
	Callback   ratelimit.Policy
	Newsletter ratelimit.Policy
}

// Limits resolves every flow's policy. Newsletter shares the contact window.
func (p *Policy) Limits() Limits {
	contact := p.Limit(ratelimit.ContactPolicy.Name)
	return Limits{
		Booking:    p.Limit(ratelimit.BookingPolicy.Name),
		Contact:    contact,
		Membership: p.Limit(ratelimit.MembershipPolicy.Name),
		Callback:   p.Limit(ratelimit.CallbackPolicy.Name),
		Newsletter: contact,
	}
}
