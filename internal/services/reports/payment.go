package reports

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/services/payment"
	"github.com/snaglog/snaglog-api/internal/storage"
)

// CreateCheckout opens a payment session for an owned, unpaid, non-empty report
func (s *Service) CreateCheckout(ctx context.Context, ownerID, reportID string) (*payment.Session, error) {
	const op = "reports.CreateCheckout"

	report, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}
	if report.IsPaid() {
		return nil, apperr.StateConflict(op, "Report already paid")
	}
	if len(report.Snags) == 0 {
		return nil, apperr.Validation(op, "No snags in report")
	}
	if s.payments == nil {
		return nil, apperr.Gateway(op, payment.ErrNotConfigured)
	}

	base := strings.TrimRight(s.opts.FrontendURL, "/")
	session, err := s.payments.CreateCheckout(ctx, payment.CheckoutRequest{
		ReportID:   reportID,
		OwnerID:    ownerID,
		SuccessURL: fmt.Sprintf("%s/report/%s/success?session_id={CHECKOUT_SESSION_ID}", base, reportID),
		CancelURL:  fmt.Sprintf("%s/report/%s/review", base, reportID),
	})
	if err != nil {
		return nil, apperr.Gateway(op, err)
	}
	return session, nil
}

// VerifyPayment confirms a checkout session and renders the document. A report
// that is already paid and rendered is returned as-is without contacting the
// gateway or renderer.
func (s *Service) VerifyPayment(ctx context.Context, ownerID, reportID, sessionID string) (*models.Report, error) {
	const op = "reports.VerifyPayment"

	report, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}
	if report.IsPaid() && report.Status == models.ReportStatusComplete && report.DocumentURL != "" {
		return report, nil
	}

	if !report.IsPaid() {
		if strings.TrimSpace(sessionID) == "" {
			return nil, apperr.Validation(op, "sessionId is required")
		}
		if s.payments == nil {
			return nil, apperr.Gateway(op, payment.ErrNotConfigured)
		}
		session, err := s.payments.GetSession(ctx, sessionID)
		if err != nil {
			return nil, apperr.Gateway(op, err)
		}
		if session.ReportID != reportID {
			return nil, apperr.Validation(op, "Invalid session")
		}
		if !session.Paid {
			return nil, apperr.Validation(op, "Payment not completed")
		}
		if err := s.store.MarkPaid(ctx, reportID, session.PaymentRef); err != nil {
			return nil, err
		}
		log.Printf("💳 Payment confirmed for report %s", report.ShortID())
	}

	return s.GenerateDocument(ctx, ownerID, reportID)
}

// HandlePaymentEvent applies a verified gateway event. A completed checkout
// marks the report paid and renders the document in the background.
func (s *Service) HandlePaymentEvent(ctx context.Context, evt *payment.Event) error {
	const op = "reports.HandlePaymentEvent"

	if evt.Type != payment.EventCheckoutCompleted || evt.Session == nil {
		log.Printf("Unhandled payment event type: %s", evt.Type)
		return nil
	}
	session := evt.Session
	if !session.Paid {
		log.Printf("⚠️ Checkout %s completed without payment", session.ID)
		return nil
	}
	if session.ReportID == "" {
		return apperr.Validation(op, "Payment session has no report id")
	}

	report, err := s.store.GetReportByID(ctx, session.ReportID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validation(op, "Payment session references an unknown report")
		}
		return err
	}
	if err := s.store.MarkPaid(ctx, report.ID, session.PaymentRef); err != nil {
		return err
	}
	log.Printf("💳 Payment webhook confirmed report %s", report.ShortID())

	if report.Status != models.ReportStatusReview && report.Status != models.ReportStatusGenerating {
		return nil
	}

	bg := context.WithoutCancel(ctx)
	s.spawn(func() {
		if _, err := s.GenerateDocument(bg, report.UserID, report.ID); err != nil {
			log.Printf("❌ Background render failed for report %s: %v", report.ShortID(), err)
		}
	})
	return nil
}

// GenerateDocument renders and stores the report document. Rendering requires
// payment and holds the report's render claim; a failed render releases the
// claim and leaves the report GENERATING so it can be retried. A caller that
// loses the race to another render gets the report as it stands.
func (s *Service) GenerateDocument(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	const op = "reports.GenerateDocument"

	report, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status == models.ReportStatusComplete && report.DocumentURL != "" {
		return report, nil
	}

	claim := uuid.New().String()
	if err := s.store.Transition(ctx, reportID, models.BeginRendering(claim, s.now(), s.opts.RenderStaleAfter)); err != nil {
		return s.renderedElsewhere(ctx, ownerID, reportID, err)
	}
	s.notifyStatus(report, models.ReportStatusGenerating)

	// Snags are frozen from here on; reload so the document matches them
	report, err = s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		s.releaseRender(ctx, reportID, claim)
		return nil, err
	}

	doc, err := s.renderer.Render(ctx, report, report.Snags)
	if err != nil {
		log.Printf("❌ Render failed for report %s: %v", report.ShortID(), err)
		s.releaseRender(ctx, reportID, claim)
		return nil, apperr.Render(op, err)
	}

	url, err := s.blobs.Put(ctx, doc, "application/pdf", storage.DocumentKey(reportID))
	if err != nil {
		log.Printf("❌ Document upload failed for report %s: %v", report.ShortID(), err)
		s.releaseRender(ctx, reportID, claim)
		return nil, apperr.Storage(op, err)
	}

	if err := s.store.Transition(ctx, reportID, models.Complete(url, claim)); err != nil {
		return s.renderedElsewhere(ctx, ownerID, reportID, err)
	}
	log.Printf("📄 Document rendered for report %s (%d bytes)", report.ShortID(), len(doc))

	s.notifier.Notify(ownerID, EventReportDocument, map[string]interface{}{
		"reportId": reportID,
		"pdfUrl":   url,
	})
	s.notifyStatus(report, models.ReportStatusComplete)

	return s.store.GetReport(ctx, ownerID, reportID)
}

// renderedElsewhere resolves a lost render transition. A report another
// request completed, or is still rendering, is returned without error.
func (s *Service) renderedElsewhere(ctx context.Context, ownerID, reportID string, cause error) (*models.Report, error) {
	if !apperr.Is(cause, apperr.KindStateConflict) {
		return nil, cause
	}
	current, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, cause
	}
	switch {
	case current.Status == models.ReportStatusComplete && current.DocumentURL != "":
		return current, nil
	case current.Status == models.ReportStatusGenerating && current.RenderClaim != "":
		log.Printf("⏳ Report %s is already being rendered", current.ShortID())
		return current, nil
	}
	return nil, cause
}

func (s *Service) releaseRender(ctx context.Context, reportID, claim string) {
	if err := s.store.Transition(context.WithoutCancel(ctx), reportID, models.ReleaseRendering(claim)); err != nil {
		log.Printf("⚠️ Could not release render claim for report %s: %v", reportID, err)
	}
}

// PaymentStatus returns the owned report for its payment and lifecycle state
func (s *Service) PaymentStatus(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	return s.store.GetReport(ctx, ownerID, reportID)
}
