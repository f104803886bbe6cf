// Package games holds the installed-game catalog and the process
// launcher for the kiosk.
package games

import (
	"sort"

	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// Game describes one installed game from the catalog.
type Game struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	ExecutablePath   string `json:"executable_path,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	Arguments        string `json:"arguments,omitempty"`
	Description      string `json:"description,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	MinDurationSecs  int    `json:"min_duration_seconds,omitempty"`
	MaxDurationSecs  int    `json:"max_duration_seconds,omitempty"`
}

// Catalog is the externally supplied reference list of games. Lookups
// never mutate it.
type Catalog struct {
	games map[string]*Game
}

// NewCatalog builds a catalog from configuration.
func NewCatalog(cfg config.GamesConfig, log *logger.Logger) *Catalog {
	games := make(map[string]*Game, len(cfg.Catalog))
	for _, g := range cfg.Catalog {
		games[g.ID] = &Game{
			ID:               g.ID,
			Title:            g.Title,
			ExecutablePath:   g.ExecutablePath,
			WorkingDirectory: g.WorkingDirectory,
			Arguments:        g.Arguments,
			Description:      g.Description,
			ImageURL:         g.ImageURL,
			MinDurationSecs:  g.MinDurationSecs,
			MaxDurationSecs:  g.MaxDurationSecs,
		}
	}
	log.Named("games").Info("Loaded game catalog", logger.Int("game_count", len(games)))
	return &Catalog{games: games}
}

// Get returns the game with the given id, or false if unknown.
func (c *Catalog) Get(id string) (*Game, bool) {
	g, ok := c.games[id]
	return g, ok
}

// All returns every game in the catalog, ordered by id.
func (c *Catalog) All() []*Game {
	all := make([]*Game, 0, len(c.games))
	for _, g := range c.games {
		all = append(all, g)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Len returns the number of games in the catalog.
func (c *Catalog) Len() int {
	return len(c.games)
}
