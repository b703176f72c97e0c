package bundle

import "github.com/dukex/agentbundle/pkg/models"

// Palette holds the colors new bundles cycle through.
var Palette = []models.Color{
	{Name: "Ocean Blue", Color: "#0EA5E9", Light: "#E0F2FE"},
	{Name: "Indigo", Color: "#6366F1", Light: "#E0E7FF"},
	{Name: "Purple", Color: "#8B5CF6", Light: "#EDE9FE"},
	{Name: "Emerald", Color: "#10B981", Light: "#D1FAE5"},
	{Name: "Orange", Color: "#F59E0B", Light: "#FEF3C7"},
	{Name: "Rose", Color: "#F43F5E", Light: "#FFE4E6"},
	{Name: "Teal", Color: "#14B8A6", Light: "#CCFBF1"},
	{Name: "Violet", Color: "#7C3AED", Light: "#EDE9FE"},
	{Name: "Cyan", Color: "#06B6D4", Light: "#CFFAFE"},
	{Name: "Lime", Color: "#84CC16", Light: "#ECFCCB"},
	{Name: "Pink", Color: "#EC4899", Light: "#FCE7F3"},
	{Name: "Red", Color: "#EF4444", Light: "#FEE2E2"},
	{Name: "Slate", Color: "#64748B", Light: "#F1F5F9"},
	{Name: "Zinc", Color: "#71717A", Light: "#F4F4F5"},
	{Name: "Stone", Color: "#78716C", Light: "#F5F5F4"},
	{Name: "Amber", Color: "#F59E0B", Light: "#FEF3C7"},
}

// DefaultColor returns the palette entry for the bundle with id.
func DefaultColor(id models.BundleID) models.Color {
	if id == 0 {
		return Palette[0]
	}

	return Palette[int((id-1)%models.BundleID(len(Palette)))]
}
