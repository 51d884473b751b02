/**
 * @description
 * Pure entitlement-to-tier resolution. Given the set of active entitlement
 * identifiers (and the purchased product identifier as a fallback), decide
 * which subscription tier the user holds.
 *
 * The product-id fallback exists because entitlement delivery can lag
 * product-purchase delivery in the platform's events; inferring the tier from
 * the product name is a known approximation for that window, not a guess.
 */

package app

import (
	"strings"

	"github.com/pantrychef/credits-service/internal/domain"
)

// ResolveTier maps active entitlements to a subscription tier. Power implies
// Pro: a power subscriber holds both entitlements, so power is checked first.
// With no recognizable entitlement the product id is pattern-matched
// ("power" before "pro"), and an unrecognizable product yields TierNone.
func ResolveTier(entitlementIDs []string, productID string) domain.Tier {
	hasPro := false
	for _, id := range entitlementIDs {
		switch id {
		case domain.EntitlementPower:
			return domain.TierPower
		case domain.EntitlementPro:
			hasPro = true
		}
	}
	if hasPro {
		return domain.TierPro
	}

	product := strings.ToLower(productID)
	if strings.Contains(product, "power") {
		return domain.TierPower
	}
	if strings.Contains(product, "pro") {
		return domain.TierPro
	}

	return domain.TierNone
}
