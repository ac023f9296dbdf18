package api

import (
	"net/http"

	"glowlogy/cmd/internal/inquiry"
)

type newsletterRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	var in inquiry.ContactInput
	if !h.decode(w, r, &in) {
		return
	}
	rc, err := h.inquiries.SubmitContact(r.Context(), in)
	h.writeReceipt(w, "api.contact", rc, err)
}

func (h *Handler) handleMembership(w http.ResponseWriter, r *http.Request) {
	var in inquiry.MembershipInput
	if !h.decode(w, r, &in) {
		return
	}
	id, signedIn, ok := h.caller(w, r)
	if !ok {
		return
	}
	if signedIn {
		in.UserID = id.ID
	}
	rc, err := h.inquiries.SubmitMembership(r.Context(), in)
	h.writeReceipt(w, "api.membership", rc, err)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	var in inquiry.CallbackInput
	if !h.decode(w, r, &in) {
		return
	}
	in.UserAgent = r.UserAgent()
	in.Referrer = r.Referer()
	rc, err := h.inquiries.SubmitCallback(r.Context(), in)
	h.writeReceipt(w, "api.callback", rc, err)
}

func (h *Handler) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	var req newsletterRequest
	if !h.decode(w, r, &req) {
		return
	}
	rc, err := h.inquiries.Subscribe(r.Context(), req.Email)
	h.writeReceipt(w, "api.newsletter", rc, err)
}

func (h *Handler) writeReceipt(w http.ResponseWriter, op string, rc inquiry.Receipt, err error) {
	if err != nil {
		h.writeAppError(w, op, err)
		return
	}
	if rc.AlreadySubscribed {
		writeJSON(w, http.StatusOK, rc)
		return
	}
	writeJSON(w, http.StatusCreated, rc)
}
