// internal/services/stripe_service.go
package services

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/config"
	"github.com/iagallery/iag-backend/internal/fees"
	"github.com/iagallery/iag-backend/internal/models"
)

var centsPerUnit = decimal.NewFromInt(100)

// StripeService handles the card checkout path. The purchase itself still
// goes through LicenseService; Stripe only settles the money.
type StripeService struct {
	license  *LicenseService
	artworks *ArtworkService
	currency string
	enabled  bool
}

func NewStripeService(license *LicenseService, artworks *ArtworkService, cfg *config.Config) *StripeService {
	if cfg.Payment.StripeSecretKey != "" {
		stripe.Key = cfg.Payment.StripeSecretKey
	}

	return &StripeService{
		license:  license,
		artworks: artworks,
		currency: strings.ToLower(cfg.Payment.Currency),
		enabled:  cfg.Payment.StripeSecretKey != "",
	}
}

func (s *StripeService) Enabled() bool {
	return s.enabled
}

// CreatePaymentIntent opens a card payment for the artwork's purchase total
// and returns the client secret for the frontend confirmation step.
func (s *StripeService) CreatePaymentIntent(buyerID, artworkID uuid.UUID) (*stripe.PaymentIntent, error) {
	if !s.enabled {
		return nil, apperrors.Validation("card payments are not enabled")
	}

	artwork, err := s.artworks.Get(artworkID)
	if err != nil {
		return nil, err
	}
	if artwork.LicenseState != models.LicenseStateAvailable {
		return nil, apperrors.InvalidState("artwork is not available for purchase")
	}

	total := fees.PurchaseTotal(artwork.Price)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(total.Mul(centsPerUnit).IntPart()),
		Currency: stripe.String(s.currency),
	}
	params.AddMetadata("artwork_id", artworkID.String())
	params.AddMetadata("buyer_id", buyerID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to create payment intent", err)
	}

	return pi, nil
}

// ConfirmCardPurchase verifies the payment intent succeeded for this buyer
// and artwork, then runs the regular purchase transition.
func (s *StripeService) ConfirmCardPurchase(buyerID, artworkID uuid.UUID, paymentIntentID string) (*models.Transaction, error) {
	if !s.enabled {
		return nil, apperrors.Validation("card payments are not enabled")
	}

	pi, err := paymentintent.Get(paymentIntentID, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to fetch payment intent", err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, apperrors.Validation("payment has not completed")
	}
	if pi.Metadata["artwork_id"] != artworkID.String() || pi.Metadata["buyer_id"] != buyerID.String() {
		return nil, apperrors.Validation("payment intent does not belong to this purchase")
	}

	return s.license.Purchase(buyerID, artworkID, models.PaymentMethodCard, pi.ID)
}
