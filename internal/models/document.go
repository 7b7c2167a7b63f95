// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// DocumentType is a user-defined kind of record ("Insurance", "Passport").
// Its id is the slug of Type, and its records are embedded in order.
type DocumentType struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes"`
	Records   []Record  `json:"records"`
	CreatedAt time.Time `json:"createdAt"`
}

// EntryID returns the document type id.
func (d DocumentType) EntryID() string { return d.ID }

// Record is one document kept under a DocumentType. Dates are YYYY-MM-DD.
type Record struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Number       string  `json:"number"`
	Category     string  `json:"category"`
	IssuedOn     string  `json:"issuedOn"`
	ExpireAt     *string `json:"expireAt"`
	IssuedBy     string  `json:"issuedBy"`
	DownloadLink string  `json:"downloadLink"`
}
