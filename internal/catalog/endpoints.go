// Package catalog talks to the remote book catalog: it resolves free-text queries to
// catalog ids and maps product details to metadata records.
package catalog

import (
	"net/url"
	"strconv"
	"strings"
)

// Default catalog locations and scope. The site and group ids restrict search to the
// fiction storefront; their values come from observed API traffic.
const (
	DefaultSearchURL = "https://api.drivethrufiction.com/api/vBeta/search_ahead"
	DefaultDetailURL = "https://api.drivethrufiction.com/api/vBeta/products"
	DefaultImageURL  = "https://www.drivethrufiction.com/images"
	DefaultSiteID    = 70
	DefaultGroupID   = 25
)

// DefaultBlockTerms are product-name markers excluded from search results.
var DefaultBlockTerms = []string{"fantasy grounds"}

// Endpoints locates the catalog's search, detail and image resources.
type Endpoints struct {
	SearchURL string
	DetailURL string
	ImageURL  string
	SiteID    int
	GroupID   int
}

// DefaultEndpoints returns the production catalog endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		SearchURL: DefaultSearchURL,
		DetailURL: DefaultDetailURL,
		ImageURL:  DefaultImageURL,
		SiteID:    DefaultSiteID,
		GroupID:   DefaultGroupID,
	}
}

// SearchQueryURL returns the search URL for keyword.
func (e Endpoints) SearchQueryURL(keyword string) string {
	// Spaces are sent as %20, not '+'.
	kw := strings.ReplaceAll(url.QueryEscape(keyword), "+", "%20")
	return e.SearchURL +
		"?groupId=" + strconv.Itoa(e.GroupID) +
		"&keyword=" + kw +
		"&siteId=" + strconv.Itoa(e.SiteID)
}

// ProductURL returns the detail URL for a catalog id.
func (e Endpoints) ProductURL(id string) string {
	return strings.TrimRight(e.DetailURL, "/") + "/" + url.PathEscape(id)
}

// CoverURL returns the absolute cover URL for an image path from a product detail.
func (e Endpoints) CoverURL(imagePath string) string {
	return strings.TrimRight(e.ImageURL, "/") + "/" + strings.TrimLeft(imagePath, "/")
}
