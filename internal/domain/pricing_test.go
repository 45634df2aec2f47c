package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysUntil(t *testing.T) {
	now := date(2024, time.March, 10)
	cases := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"future", date(2024, time.March, 25), 15},
		{"same day", date(2024, time.March, 10), 0},
		{"past", date(2024, time.March, 1), -9},
		{"time of day ignored", time.Date(2024, time.March, 11, 23, 59, 0, 0, time.UTC), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DaysUntil(tc.expiry, now); got != tc.want {
				t.Fatalf("DaysUntil = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRemainingDaysClampsExpired(t *testing.T) {
	now := date(2024, time.March, 10)
	if got := RemainingDays(date(2024, time.February, 1), now); got != 0 {
		t.Fatalf("RemainingDays for expired subscription = %d, want 0", got)
	}
}

func TestProratedSeatPrice(t *testing.T) {
	cases := []struct {
		name      string
		fullPrice int64
		remaining int
		termDays  int
		want      int64
	}{
		{"half term", 1000, 182, 365, 499},
		{"one fifth of term", 1000, 73, 365, 200},
		{"rounds half away from zero", 10, 1, 4, 3},
		{"full term charges full price", 1000, 365, 365, 1000},
		{"beyond term clamps to full price", 1000, 400, 365, 1000},
		{"zero remaining is free", 1000, 0, 365, 0},
		{"negative remaining is free", 1000, -5, 365, 0},
		{"zero term", 1000, 10, 0, 0},
		{"zero price", 0, 10, 365, 0},
		{"single day", 36500, 1, 365, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProratedSeatPrice(tc.fullPrice, tc.remaining, tc.termDays)
			if got != tc.want {
				t.Fatalf("ProratedSeatPrice(%d, %d, %d) = %d, want %d",
					tc.fullPrice, tc.remaining, tc.termDays, got, tc.want)
			}
		})
	}
}

func TestProratedSeatPriceNeverExceedsFullPrice(t *testing.T) {
	const fullPrice = 9999
	const termDays = 365
	for remaining := 0; remaining <= termDays+10; remaining++ {
		got := ProratedSeatPrice(fullPrice, remaining, termDays)
		if got < 0 || got > fullPrice {
			t.Fatalf("ProratedSeatPrice(%d, %d, %d) = %d, out of [0, %d]",
				int64(fullPrice), remaining, termDays, got, int64(fullPrice))
		}
	}
}

func TestRenewalEligible(t *testing.T) {
	now := date(2024, time.June, 15)
	cases := []struct {
		name   string
		expiry time.Time
		window int
		grace  int
		want   bool
	}{
		{"inside window", date(2024, time.July, 1), 30, 30, true},
		{"on window boundary", date(2024, time.July, 15), 30, 30, true},
		{"too early", date(2024, time.August, 1), 30, 30, false},
		{"expired inside grace", date(2024, time.June, 1), 30, 30, true},
		{"on grace boundary", date(2024, time.May, 16), 30, 30, true},
		{"expired past grace", date(2024, time.May, 1), 30, 30, false},
		{"expires today", date(2024, time.June, 15), 30, 30, true},
		{"zero grace rejects expired", date(2024, time.June, 14), 30, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RenewalEligible(tc.expiry, now, tc.window, tc.grace)
			if got != tc.want {
				t.Fatalf("RenewalEligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOrderTotal(t *testing.T) {
	order := Order{Items: []OrderLineItem{
		{Quantity: 3, SeatPrice: 100},
		{Quantity: 1, SeatPrice: 250},
	}}
	if got := order.Total(); got != 550 {
		t.Fatalf("Total = %d, want 550", got)
	}
}

func TestSubscriptionExpired(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	active := Subscription{ExpiryDate: date(2024, time.June, 15)}
	if active.Expired(now) {
		t.Fatal("subscription expiring today should not be expired")
	}
	lapsed := Subscription{ExpiryDate: date(2024, time.June, 14)}
	if !lapsed.Expired(now) {
		t.Fatal("subscription past its expiry date should be expired")
	}
}
