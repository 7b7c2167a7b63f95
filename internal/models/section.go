// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

// Section is a legacy document section (v1 model). Defaults are built in;
// custom sections live in the "documents" collection.
type Section struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      Icon   `json:"icon"`
	IsDefault bool   `json:"isDefault"`
}

// EntryID returns the section id.
func (s Section) EntryID() string { return s.ID }

// SectionIcons lists the icons a section may use.
var SectionIcons = []Icon{IconFileText, IconCreditCard}

// DefaultSections returns a fresh copy of the built-in sections.
func DefaultSections() []Section {
	return []Section{
		{ID: "driving-licence", Name: "Driving Licence", Icon: IconFileText, IsDefault: true},
		{ID: "pan-info", Name: "Pan Info", Icon: IconCreditCard, IsDefault: true},
	}
}

// SectionForm is the free-form detail sheet saved for a section.
type SectionForm struct {
	DocumentNumber string `json:"documentNumber"`
	IssuedDate     string `json:"issuedDate"`
	ExpiryDate     string `json:"expiryDate"`
	IssuedBy       string `json:"issuedBy"`
	Notes          string `json:"notes"`
	FileURL        string `json:"fileUrl"`
}

// SectionFile is an uploaded file stored inline as a data URL, partitioned
// by year beneath its section.
type SectionFile struct {
	FileName     string `json:"fileName"`
	FileContent  string `json:"fileContent"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	UploadedAt   string `json:"uploadedAt"`
	OriginalName string `json:"originalName"`
	Year         int    `json:"year"`
}
