// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

// Icon tags a category or document section with a client-side glyph name.
type Icon string

const (
	IconLayoutGrid Icon = "LayoutGrid"
	IconBriefcase  Icon = "Briefcase"
	IconHome       Icon = "Home"
	IconFolder     Icon = "Folder"
	IconStar       Icon = "Star"
	IconHeart      Icon = "Heart"
	IconZap        Icon = "Zap"
	IconTarget     Icon = "Target"
	IconBookOpen   Icon = "BookOpen"
	IconCode       Icon = "Code"
	IconPalette    Icon = "Palette"
	IconMusic      Icon = "Music"
	IconFileText   Icon = "FileText"
	IconCreditCard Icon = "CreditCard"
)

// CategoryIcons lists the icons a category may use.
var CategoryIcons = []Icon{
	IconLayoutGrid, IconBriefcase, IconHome, IconFolder, IconStar, IconHeart,
	IconZap, IconTarget, IconBookOpen, IconCode, IconPalette, IconMusic,
}

// AllTasksCategoryID is the default category that selects every task.
const AllTasksCategoryID = "all-tasks"

// Category groups tasks. Default categories are built in and never stored;
// custom ones live in the user's "categories" collection.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      Icon   `json:"icon"`
	IsDefault bool   `json:"isDefault"`
}

// EntryID returns the category id.
func (c Category) EntryID() string { return c.ID }

// DefaultCategories returns a fresh copy of the built-in categories in
// display order.
func DefaultCategories() []Category {
	return []Category{
		{ID: AllTasksCategoryID, Name: "All Tasks", Icon: IconLayoutGrid, IsDefault: true},
		{ID: "office", Name: "Office", Icon: IconBriefcase, IsDefault: true},
		{ID: "home", Name: "Home", Icon: IconHome, IsDefault: true},
		{ID: "projects", Name: "Projects", Icon: IconFolder, IsDefault: true},
	}
}

// IsDefaultCategoryID reports whether id belongs to a built-in category.
func IsDefaultCategoryID(id string) bool {
	for _, c := range DefaultCategories() {
		if c.ID == id {
			return true
		}
	}
	return false
}
