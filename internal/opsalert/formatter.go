package opsalert

import (
	"fmt"
	"strconv"
	"time"
)

const (
	colorWarn     = 0xFEE75C
	colorCritical = 0xED4245
	colorInfo     = 0x5865F2

	errorPreviewLimit = 200
	shortIDLimit      = 12
	defaultFooter     = "round-settlement ops"
)

func FormatMessage(a Alert) (FormattedMessage, bool) {
	round := shortID(fallback(a.RoundID, "unknown"), shortIDLimit)
	base := FormattedMessage{
		Timestamp: alertTimestamp(a.At),
		Footer:    defaultFooter,
	}
	fields := []MessageField{
		{Name: "Round", Value: fallback(a.RoundID, "-"), Inline: true},
		{Name: "Room", Value: fallback(a.RoomID, "-"), Inline: true},
	}

	switch a.Event {
	case EventPayoutFailed:
		base.Title = fmt.Sprintf("Payout failed · %s", round)
		base.Content = fmt.Sprintf("payout to %s failed, retry scheduled", fallback(a.AccountID, "-"))
		base.Color = colorWarn
	case EventPayoutExhausted:
		base.Title = fmt.Sprintf("Payout needs operator · %s", round)
		base.Content = fmt.Sprintf("payout to %s gave up after %d attempts", fallback(a.AccountID, "-"), a.Attempt)
		base.Color = colorCritical
	case EventPayoutUnknown:
		base.Title = fmt.Sprintf("Payout outcome unknown · %s", round)
		base.Content = fmt.Sprintf("transfer to %s may have landed; check the ledger before retrying", fallback(a.AccountID, "-"))
		base.Color = colorCritical
	case EventRefundFailed:
		base.Title = fmt.Sprintf("Refund failed · %s", round)
		base.Content = fmt.Sprintf("refund to %s failed", fallback(a.AccountID, "-"))
		base.Color = colorCritical
	case EventRoundCancelled:
		base.Title = fmt.Sprintf("Round cancelled · %s", round)
		base.Content = "round cancelled, stakes refunded"
		base.Color = colorInfo
	default:
		return FormattedMessage{}, false
	}
	base.Description = base.Content

	if a.AccountID != "" {
		fields = append(fields, MessageField{Name: "Account", Value: a.AccountID, Inline: true})
	}
	if a.Amount > 0 {
		fields = append(fields, MessageField{Name: "Amount", Value: strconv.FormatInt(a.Amount, 10), Inline: true})
	}
	if a.Attempt > 0 {
		fields = append(fields, MessageField{Name: "Attempt", Value: strconv.Itoa(a.Attempt), Inline: true})
	}
	if a.Error != "" {
		fields = append(fields, MessageField{Name: "Error", Value: trimText(a.Error, errorPreviewLimit)})
	}
	base.Fields = fields
	return base, true
}

func alertTimestamp(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UTC().Format(time.RFC3339)
}

func trimText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func shortID(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func fallback(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
