// Package catalog holds the directory of Android applications the planner
// can reason about. An app being listed here means the planner knows how to
// install it; whether it is installed on a particular device comes from the
// device snapshot instead.
package catalog

import (
	"context"
	"sort"
	"strings"
)

// App describes one installable application.
type App struct {
	Name        string  `json:"name"`
	Package     string  `json:"package,omitempty"`
	SizeMB      float64 `json:"size_mb,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Directory maps a normalised app name to its catalog entry.
type Directory map[string]App

// Provider supplies the app directory, possibly from a database.
type Provider interface {
	Directory(ctx context.Context) (Directory, error)
}

func normalise(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// BuildDirectory indexes the given apps by normalised name. Later entries
// win on duplicate names.
func BuildDirectory(apps []App) Directory {
	dir := make(Directory, len(apps))
	for _, app := range apps {
		key := normalise(app.Name)
		if key == "" {
			continue
		}
		dir[key] = app
	}
	return dir
}

// Lookup returns the entry for the named app, matching case-insensitively.
func (d Directory) Lookup(name string) (App, bool) {
	app, ok := d[normalise(name)]
	return app, ok
}

// Known reports whether the named app is listed in the directory.
func (d Directory) Known(name string) bool {
	_, ok := d.Lookup(name)
	return ok
}

// Names returns the display names of all listed apps, sorted.
func (d Directory) Names() []string {
	names := make([]string, 0, len(d))
	for _, app := range d {
		names = append(names, app.Name)
	}
	sort.Strings(names)
	return names
}

// Apps returns all entries sorted by display name, for seeding stores.
func (d Directory) Apps() []App {
	apps := make([]App, 0, len(d))
	for _, app := range d {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps
}

// Clone returns an independent copy of the directory.
func (d Directory) Clone() Directory {
	clone := make(Directory, len(d))
	for key, app := range d {
		clone[key] = app
	}
	return clone
}

// Default returns the built-in directory shipped with the device image.
func Default() Directory {
	return BuildDirectory([]App{
		{Name: "Maps", Package: "com.google.android.apps.maps", SizeMB: 120, Category: "Navigation"},
		{Name: "YouTube", Package: "com.google.android.youtube", SizeMB: 142, Category: "Video"},
		{Name: "WhatsApp", Package: "com.whatsapp", SizeMB: 68, Category: "Messaging"},
		{Name: "Instagram", Package: "com.instagram.android", SizeMB: 85, Category: "Social"},
		{Name: "Telegram", Package: "org.telegram.messenger", SizeMB: 75, Category: "Messaging"},
		{Name: "Spotify", Package: "com.spotify.music", SizeMB: 100, Category: "Music"},
	})
}
