package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// Stripe signs webhook bodies well under this size
const maxWebhookBytes = 64 << 10

// VerifyRequest carries the checkout session returned to the success URL
type VerifyRequest struct {
	SessionID string `json:"sessionId"`
}

// createCheckout starts a checkout session for a report
func (r *Router) createCheckout(w http.ResponseWriter, req *http.Request) {
	session, err := r.reports.CreateCheckout(req.Context(), owner(req), mux.Vars(req)["reportId"])
	if err != nil {
		respondAppError(w, err, "Failed to create checkout session")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// verifyPayment confirms a checkout session and returns the document URL
func (r *Router) verifyPayment(w http.ResponseWriter, req *http.Request) {
	var body VerifyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.SessionID == "" {
		respondError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	report, err := r.reports.VerifyPayment(req.Context(), owner(req), mux.Vars(req)["reportId"], body.SessionID)
	if err != nil {
		respondAppError(w, err, "Failed to verify payment")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": report.Status, "pdfUrl": report.DocumentURL})
}

// paymentStatus returns the report's payment and lifecycle state
func (r *Router) paymentStatus(w http.ResponseWriter, req *http.Request) {
	report, err := r.reports.PaymentStatus(req.Context(), owner(req), mux.Vars(req)["reportId"])
	if err != nil {
		respondAppError(w, err, "Failed to get payment status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"report": map[string]interface{}{
			"id":            report.ID,
			"status":        report.Status,
			"paymentStatus": report.PaymentStatus,
			"pdfUrl":        report.DocumentURL,
		},
	})
}

// paymentWebhook applies signed gateway events
func (r *Router) paymentWebhook(w http.ResponseWriter, req *http.Request) {
	if r.events == nil {
		respondError(w, http.StatusServiceUnavailable, "Payments are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read webhook body")
		return
	}

	evt, err := r.events.ParseEvent(payload, req.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Printf("⚠️ Webhook signature verification failed: %v", err)
		respondError(w, http.StatusBadRequest, "Webhook Error: "+err.Error())
		return
	}

	if err := r.reports.HandlePaymentEvent(req.Context(), evt); err != nil {
		respondAppError(w, err, "Failed to handle payment event")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
