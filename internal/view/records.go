// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package view

import (
	"time"

	"tasknest/internal/models"
)

// DateLayout is the only date format stored on records and tasks.
const DateLayout = "2006-01-02"

// RecordView is a record with its expiry flag.
type RecordView struct {
	models.Record
	Expired bool `json:"expired"`
}

// Today formats the clock's current local date.
func Today(now func() time.Time) string {
	return now().Format(DateLayout)
}

// IsExpired reports whether the record expired before today. Both dates are
// YYYY-MM-DD strings, which compare correctly as text. A record expiring
// today is not expired yet.
func IsExpired(r models.Record, today string) bool {
	return r.ExpireAt != nil && *r.ExpireAt != "" && *r.ExpireAt < today
}

// Records flags each record in storage order.
func Records(records []models.Record, today string) []RecordView {
	out := make([]RecordView, len(records))
	for i, r := range records {
		out[i] = RecordView{Record: r, Expired: IsExpired(r, today)}
	}
	return out
}

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
