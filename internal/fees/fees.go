// internal/fees/fees.go
package fees

import "github.com/shopspring/decimal"

// Platform rates are fixed product constants, not configuration: the license
// protection fee is quoted to buyers at checkout and refund math depends on
// the rate that was in force at purchase time.
var (
	licenseProtectionRate = decimal.NewFromFloat(0.05)
	p2pCommissionRate     = decimal.NewFromFloat(0.01)
	withdrawalRate        = decimal.NewFromFloat(0.01)
	minResaleMarkup       = decimal.NewFromFloat(1.01)
)

// LicenseProtectionFee is the non-refundable 5% surcharge collected at
// purchase time, rounded half away from zero to cents.
func LicenseProtectionFee(price decimal.Decimal) decimal.Decimal {
	return price.Mul(licenseProtectionRate).Round(2)
}

// PurchaseTotal is what the buyer pays: base price plus protection fee.
func PurchaseTotal(price decimal.Decimal) decimal.Decimal {
	return price.Add(LicenseProtectionFee(price))
}

// P2PCommission is the 1% platform cut deducted from seller proceeds on a
// marketplace sale.
func P2PCommission(salePrice decimal.Decimal) decimal.Decimal {
	return salePrice.Mul(p2pCommissionRate).Round(2)
}

// SellerProceeds is what the seller receives after commission.
func SellerProceeds(salePrice decimal.Decimal) decimal.Decimal {
	return salePrice.Sub(P2PCommission(salePrice))
}

// WithdrawalFee is the 1% fee deducted from a payout.
func WithdrawalFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(withdrawalRate).Round(2)
}

// MinResalePrice is the floor for marketplace listings: the current owner's
// purchase price plus 1%.
func MinResalePrice(purchasePrice decimal.Decimal) decimal.Decimal {
	return purchasePrice.Mul(minResaleMarkup).Round(2)
}
