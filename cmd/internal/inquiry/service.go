package inquiry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"glowlogy/cmd/internal/apperr"
	"glowlogy/cmd/internal/docstore"
	"glowlogy/cmd/internal/events"
	"glowlogy/cmd/internal/ratelimit"
	"glowlogy/cmd/internal/validate"
)

// Deps are the collaborators of Service. Store and Limiter are required.
type Deps struct {
	Store   docstore.Store
	Limiter ratelimit.Limiter
	Events  events.Publisher
	Log     *slog.Logger
}

// Service runs the intake flows.
type Service struct {
	store   docstore.Store
	limiter ratelimit.Limiter
	events  events.Publisher
	log     *slog.Logger
	now     func() time.Time

	policies map[Kind]ratelimit.Policy
}

// Option configures Service.
type Option func(*Service)

// WithPolicy overrides the rate-limit policy of one kind.
func WithPolicy(k Kind, p ratelimit.Policy) Option {
	return func(s *Service) {
		if _, ok := kinds[k]; ok && p.Max > 0 && p.Window > 0 {
			s.policies[k] = p
		}
	}
}

// WithClock overrides the time source used for receipts and callback metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(d Deps, opts ...Option) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("inquiry: nil store")
	}
	if d.Limiter == nil {
		return nil, errors.New("inquiry: nil limiter")
	}
	s := &Service{
		store:    d.Store,
		limiter:  d.Limiter,
		events:   d.Events,
		log:      d.Log,
		now:      func() time.Time { return time.Now().UTC() },
		policies: make(map[Kind]ratelimit.Policy, len(kinds)),
	}
	for k, def := range kinds {
		s.policies[k] = def.policy
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// SubmitContact stores a contact message. The sender's email keys the limit.
func (s *Service) SubmitContact(ctx context.Context, in ContactInput) (Receipt, error) {
	if err := validate.Required("name", in.Name); err != nil {
		return Receipt{}, err
	}
	if err := validate.MaxLen("name", strings.TrimSpace(in.Name), 120); err != nil {
		return Receipt{}, err
	}
	email, err := validate.Email("email", in.Email)
	if err != nil {
		return Receipt{}, err
	}
	var phone string
	if strings.TrimSpace(in.Phone) != "" {
		if phone, err = validate.Phone("phone", in.Phone); err != nil {
			return Receipt{}, err
		}
	}
	if err := validate.Required("message", in.Message); err != nil {
		return Receipt{}, err
	}
	if err := validate.MaxLen("message", in.Message, 5000); err != nil {
		return Receipt{}, err
	}
	if err := validate.MaxLen("subject", in.Subject, 200); err != nil {
		return Receipt{}, err
	}

	rec := Contact{
		Name:    strings.TrimSpace(in.Name),
		Email:   email,
		Phone:   phone,
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
		Status:  kinds[KindContact].initial,
	}
	return s.submit(ctx, KindContact, email, rec.fields(), "Thanks for reaching out. We'll get back to you soon.")
}

// SubmitMembership stores a membership inquiry keyed by email.
func (s *Service) SubmitMembership(ctx context.Context, in MembershipInput) (Receipt, error) {
	if err := validate.Required("plan", in.PlanName); err != nil {
		return Receipt{}, err
	}
	if in.PlanPrice < 0 {
		return Receipt{}, apperr.Invalid("planPrice", "must not be negative")
	}
	if err := validate.Required("name", in.Name); err != nil {
		return Receipt{}, err
	}
	email, err := validate.Email("email", in.Email)
	if err != nil {
		return Receipt{}, err
	}
	phone, err := validate.Phone("phone", in.Phone)
	if err != nil {
		return Receipt{}, err
	}

	rec := MembershipInquiry{
		PlanName:     strings.TrimSpace(in.PlanName),
		PlanPrice:    in.PlanPrice,
		CustomerName: strings.TrimSpace(in.Name),
		Email:        email,
		Phone:        phone,
		Status:       kinds[KindMembership].initial,
	}
	if uid := strings.TrimSpace(in.UserID); uid != "" {
		rec.UserID = &uid
	}
	return s.submit(ctx, KindMembership, email, rec.fields(), "Thanks! Our team will contact you about your membership.")
}

// SubmitCallback stores a callback request keyed by phone number.
func (s *Service) SubmitCallback(ctx context.Context, in CallbackInput) (Receipt, error) {
	if err := validate.Required("name", in.Name); err != nil {
		return Receipt{}, err
	}
	phone, err := validate.Phone("phone", in.Phone)
	if err != nil {
		return Receipt{}, err
	}
	preferred, err := validate.OneOf("preferredTime", in.PreferredTime, "anytime", PreferredTimes...)
	if err != nil {
		return Receipt{}, err
	}
	service, err := validate.OneOf("service", in.Service, "general", CallbackServices...)
	if err != nil {
		return Receipt{}, err
	}
	if err := validate.MaxLen("message", in.Message, 1000); err != nil {
		return Receipt{}, err
	}

	rec := CallbackRequest{
		Name:          strings.TrimSpace(in.Name),
		Phone:         phone,
		PreferredTime: preferred,
		Service:       service,
		Message:       strings.TrimSpace(in.Message),
		Status:        kinds[KindCallback].initial,
		Priority:      "normal",
		Source:        "website_hero",
		Metadata: CallbackMetadata{
			UserAgent: in.UserAgent,
			Referrer:  in.Referrer,
			Timestamp: s.now().Format(time.RFC3339Nano),
		},
	}
	return s.submit(ctx, KindCallback, phone, rec.fields(), "We will call you back shortly!")
}

// Subscribe adds email to the newsletter. Subscribing an address that already
// has an active subscription succeeds without writing a second record.
func (s *Service) Subscribe(ctx context.Context, email string) (Receipt, error) {
	email, err := validate.Email("email", email)
	if err != nil {
		return Receipt{}, err
	}
	if err := s.charge(ctx, KindNewsletter, email); err != nil {
		return Receipt{}, err
	}

	def := kinds[KindNewsletter]
	guard := []docstore.Filter{docstore.Eq("email", email), docstore.Eq("active", true)}
	doc, err := s.store.InsertUnless(ctx, def.collection, Subscription{Email: email, Active: true}.fields(), guard)
	if errors.Is(err, docstore.ErrConflict) {
		return Receipt{Kind: KindNewsletter, At: s.now(), Message: "You're already subscribed.", AlreadySubscribed: true}, nil
	}
	if err != nil {
		s.log.Error("inquiry.submit.fail", "kind", KindNewsletter, "err", err)
		return Receipt{}, apperr.Remote("inquiry.newsletter", err)
	}

	r := Receipt{ID: doc.ID, Kind: KindNewsletter, At: s.now(), Message: "Thanks for subscribing!"}
	s.log.Info("inquiry.submitted", "kind", KindNewsletter, "id", doc.ID)
	s.publish(ctx, def.event, r)
	return r, nil
}

func (s *Service) charge(ctx context.Context, k Kind, identity string) error {
	err := ratelimit.Enforce(ctx, s.limiter, identity, s.policies[k])
	if err == nil || errors.Is(err, apperr.ErrRateLimited) || errors.Is(err, apperr.ErrValidation) {
		return err
	}
	return apperr.Remote("inquiry.ratelimit", err)
}

func (s *Service) submit(ctx context.Context, k Kind, identity string, f docstore.Fields, msg string) (Receipt, error) {
	if err := s.charge(ctx, k, identity); err != nil {
		return Receipt{}, err
	}

	def := kinds[k]
	doc, err := s.store.Insert(ctx, def.collection, f)
	if err != nil {
		s.log.Error("inquiry.submit.fail", "kind", k, "err", err)
		return Receipt{}, apperr.Remote("inquiry."+string(k), err)
	}

	r := Receipt{ID: doc.ID, Kind: k, At: s.now(), Message: msg}
	s.log.Info("inquiry.submitted", "kind", k, "id", doc.ID)
	s.publish(ctx, def.event, r)
	return r, nil
}

func (s *Service) publish(ctx context.Context, key string, r Receipt) {
	if err := s.events.Publish(ctx, events.Event{Key: key, At: r.At, Data: r}); err != nil {
		s.log.Warn("inquiry.event.publish.fail", "key", key, "err", err)
	}
}
