package components

import "github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"

// PageID is the DOM id of the page body, swapped whole when a parameter
// shared by several sections changes.
const PageID = "page"

// Link is a navigation target. Href is the full page URL; Get, when set, is
// the fragment htmx swaps in instead of navigating. Target overrides the
// element id the fragment replaces.
type Link struct {
	Label  string
	Href   string
	Get    string
	Target string
	Active bool
}

// SectionProps describes one independently loading region of a page.
type SectionProps struct {
	Name  string
	Title string
	// URL loads the section fragment; it is also the retry target.
	URL       string
	EmptyText string
	// PollSeconds, when positive, makes the section reload itself.
	PollSeconds int
}

type LayoutProps struct {
	Title string
	Theme string // "light" or "dark"
	Nav   []Link
	// Apps feeds the app picker; nil hides it.
	Apps        []apiclient.App
	SelectedApp string
	// PickerAction is the page the app picker submits to.
	PickerAction string
}

// Pagination drives the pager under a table.
type Pagination struct {
	Section    string
	Page       int
	TotalPages int
	Total      int64
	// PageLink returns the link to page n.
	PageLink func(n int) Link
	// Sizes are the page size choices.
	Sizes []Link
}

// APIKeyProps carries the links of the API key section.
type APIKeyProps struct {
	CreateURL string
	DeleteURL func(id string) string
	// Created is the key just created; its secret is shown once.
	Created *apiclient.APIKey
}
