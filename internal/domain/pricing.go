package domain

import (
	"math"
	"time"
)

// DaysUntil returns the signed whole days between now and expiry at date
// granularity. Negative means the expiry has passed.
func DaysUntil(expiry, now time.Time) int {
	expiryDate := expiry.UTC().Truncate(24 * time.Hour)
	nowDate := now.UTC().Truncate(24 * time.Hour)
	return int(expiryDate.Sub(nowDate).Hours() / 24)
}

// RemainingDays returns the whole days left until the subscription expires,
// using date granularity. An expired subscription has zero days remaining.
func RemainingDays(expiry, now time.Time) int {
	days := DaysUntil(expiry, now)
	if days < 0 {
		return 0
	}
	return days
}

// ProratedSeatPrice returns the per-seat price for seats added mid-term,
// charging only for the days left in the term. The result is rounded half
// away from zero and clamped to [0, fullPrice] so rounding can never exceed
// the catalog price or go negative.
func ProratedSeatPrice(fullPrice int64, remainingDays, termDays int) int64 {
	if termDays <= 0 || fullPrice <= 0 {
		return 0
	}
	if remainingDays <= 0 {
		return 0
	}
	if remainingDays >= termDays {
		return fullPrice
	}
	prorated := int64(math.Round(float64(fullPrice) * float64(remainingDays) / float64(termDays)))
	if prorated < 0 {
		return 0
	}
	if prorated > fullPrice {
		return fullPrice
	}
	return prorated
}

// RenewalEligible reports whether a subscription may be renewed now: within
// windowDays of expiry, or expired by no more than graceDays.
func RenewalEligible(expiry, now time.Time, windowDays, graceDays int) bool {
	days := DaysUntil(expiry, now)
	if days >= 0 {
		return days <= windowDays
	}
	return -days <= graceDays
}
