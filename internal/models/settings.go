// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

// Settings holds per-user preferences.
type Settings struct {
	DarkMode bool `json:"darkMode"`
}
