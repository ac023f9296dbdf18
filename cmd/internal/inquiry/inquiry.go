// Package inquiry implements the single-write intake flows: contact messages,
// membership inquiries, callback requests and newsletter signups.
//
// Each kind validates its input, charges its own rate-limit policy and writes
// one record to its collection. Nothing here is cached.
package inquiry

import (
	"time"

	"glowlogy/cmd/internal/docstore"
	"glowlogy/cmd/internal/events"
	"glowlogy/cmd/internal/ratelimit"
)

// Kind names an intake flow.
type Kind string

const (
	KindContact    Kind = "contact"
	KindMembership Kind = "membership"
	KindCallback   Kind = "callback"
	KindNewsletter Kind = "newsletter"
)

type kindSpec struct {
	collection string
	initial    string
	event      string
	policy     ratelimit.Policy
}

var kinds = map[Kind]kindSpec{
	KindContact:    {collection: "contacts", initial: "new", event: events.ContactSubmitted, policy: ratelimit.ContactPolicy},
	KindMembership: {collection: "membership_inquiries", initial: "pending", event: events.MembershipSubmitted, policy: ratelimit.MembershipPolicy},
	KindCallback:   {collection: "callback_requests", initial: "pending", event: events.CallbackSubmitted, policy: ratelimit.CallbackPolicy},
	KindNewsletter: {collection: "newsletter", event: events.NewsletterSubscribed, policy: ratelimit.NewsletterPolicy},
}

// Collection returns the document store collection for k.
func (k Kind) Collection() string { return kinds[k].collection }

// Preferred callback windows.
var PreferredTimes = []string{"anytime", "morning", "afternoon", "evening"}

// Services a callback can be about.
var CallbackServices = []string{"general", "massage", "facial", "body", "membership", "corporate", "booking"}

// ContactInput is a contact form submission.
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// MembershipInput asks to join a membership plan. UserID is empty for guests.
type MembershipInput struct {
	UserID string `json:"-"`

	PlanName  string `json:"planName"`
	PlanPrice int    `json:"planPrice"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CallbackInput asks for a phone call back.
type CallbackInput struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	PreferredTime string `json:"preferredTime,omitempty"`
	Service       string `json:"service,omitempty"`
	Message       string `json:"message,omitempty"`

	UserAgent string `json:"-"`
	Referrer  string `json:"-"`
}

// Contact is a stored contact message.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c Contact) fields() docstore.Fields {
	f := docstore.Fields{
		"name":      c.Name,
		"email":     c.Email,
		"message":   c.Message,
		"status":    c.Status,
		"createdAt": docstore.ServerTimestamp,
	}
	if c.Phone != "" {
		f["phone"] = c.Phone
	}
	if c.Subject != "" {
		f["subject"] = c.Subject
	}
	return f
}

// MembershipInquiry is a stored membership request.
type MembershipInquiry struct {
	PlanName     string  `json:"planName"`
	PlanPrice    int     `json:"planPrice"`
	CustomerName string  `json:"customerName"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	UserID       *string `json:"userId"`
	Status       string  `json:"status"`
}

func (m MembershipInquiry) fields() docstore.Fields {
	var uid any
	if m.UserID != nil {
		uid = *m.UserID
	}
	return docstore.Fields{
		"planName":     m.PlanName,
		"planPrice":    m.PlanPrice,
		"customerName": m.CustomerName,
		"email":        m.Email,
		"phone":        m.Phone,
		"userId":       uid,
		"status":       m.Status,
		"createdAt":    docstore.ServerTimestamp,
	}
}

// CallbackMetadata describes the client that asked for the call.
type CallbackMetadata struct {
	UserAgent string `json:"userAgent"`
	Referrer  string `json:"referrer"`
	Timestamp string `json:"timestamp"`
}

// CallbackRequest is a stored callback request.
type CallbackRequest struct {
	Name          string           `json:"name"`
	Phone         string           `json:"phone"`
	PreferredTime string           `json:"preferredTime"`
	Service       string           `json:"service"`
	Message       string           `json:"message"`
	Status        string           `json:"status"`
	Priority      string           `json:"priority"`
	Source        string           `json:"source"`
	Metadata      CallbackMetadata `json:"metadata"`
}

func (c CallbackRequest) fields() docstore.Fields {
	return docstore.Fields{
		"name":          c.Name,
		"phone":         c.Phone,
		"preferredTime": c.PreferredTime,
		"service":       c.Service,
		"message":       c.Message,
		"status":        c.Status,
		"priority":      c.Priority,
		"source":        c.Source,
		"metadata":      c.Metadata,
		"createdAt":     docstore.ServerTimestamp,
		"updatedAt":     docstore.ServerTimestamp,
	}
}

// Subscription is a newsletter signup.
type Subscription struct {
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

func (s Subscription) fields() docstore.Fields {
	return docstore.Fields{
		"email":        s.Email,
		"active":       s.Active,
		"subscribedAt": docstore.ServerTimestamp,
	}
}

// Receipt acknowledges a stored submission.
type Receipt struct {
	ID      string    `json:"id,omitempty"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`

	// AlreadySubscribed is set when a newsletter signup matched an active subscription.
	AlreadySubscribed bool `json:"alreadySubscribed,omitempty"`
}
