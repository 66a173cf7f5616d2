package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quilan1/ffxiv-market-query/internal/metrics"
)

// Catalog is the SQLite-backed item/recipe store. It expects a schema
// with an "items" table (item_id, name, ui_category, item_level,
// equip_level, is_untradable, recipe_level, recipe_stars,
// recipe_output_count) and a
// "recipe_inputs" table (item_id, ingredient_item_id, count) holding
// one row per craft input, keyed by the produced item's id.
type Catalog struct {
	db *sql.DB
}

// NewSQLiteCatalog wraps an already-open SQLite handle. The caller owns
// the handle's lifetime (schema creation, Close).
func NewSQLiteCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// CreateSchema creates the catalog tables if they do not already exist.
func (c *Catalog) CreateSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS items (
	item_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	ui_category INTEGER NOT NULL DEFAULT 0,
	item_level INTEGER NOT NULL DEFAULT 0,
	equip_level INTEGER NOT NULL DEFAULT 0,
	is_untradable INTEGER NOT NULL DEFAULT 0,
	recipe_level INTEGER NOT NULL DEFAULT 0,
	recipe_stars INTEGER NOT NULL DEFAULT 0,
	recipe_output_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS recipe_inputs (
	item_id INTEGER NOT NULL,
	ingredient_item_id INTEGER NOT NULL,
	count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recipe_inputs_item_id ON recipe_inputs(item_id);
CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);
`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("catalog: create schema: %w", err)
	}
	return nil
}

// AllFromFilters resolves a filter query into the set of matching item
// ids (topIDs), that set plus every item id reachable through their
// recipe trees (allIDs, the set Universalis must be asked about), and
// the full ItemInfo rows for the top-level matches.
func (c *Catalog) AllFromFilters(ctx context.Context, query string) (topIDs []uint32, allIDs []uint32, items []ItemInfo, err error) {
	start := time.Now()
	defer func() { metrics.CatalogQueryDuration.Observe(time.Since(start).Seconds()) }()

	f, err := ParseFilter(query)
	if err != nil {
		return nil, nil, nil, err
	}

	items, err = c.queryItems(ctx, f)
	if err != nil {
		return nil, nil, nil, err
	}

	seen := make(map[uint32]bool, len(items))
	for _, it := range items {
		topIDs = append(topIDs, it.ItemID)
		seen[it.ItemID] = true
	}

	if err := c.expandRecipeInputs(ctx, topIDs, seen); err != nil {
		return nil, nil, nil, err
	}

	allIDs = make([]uint32, 0, len(seen))
	for id := range seen {
		allIDs = append(allIDs, id)
	}

	return topIDs, allIDs, items, nil
}

func (c *Catalog) queryItems(ctx context.Context, f Filter) ([]ItemInfo, error) {
	var where []string
	var args []any

	if f.NameContains != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.NameContains+"%")
	}
	if f.UICategory != 0 {
		where = append(where, "ui_category = ?")
		args = append(args, f.UICategory)
	}
	if f.MinItemLevel != 0 {
		where = append(where, "item_level >= ?")
		args = append(args, f.MinItemLevel)
	}
	if f.MaxItemLevel != 0 {
		where = append(where, "item_level <= ?")
		args = append(args, f.MaxItemLevel)
	}

	q := `SELECT item_id, name, ui_category, item_level, equip_level, is_untradable,
		recipe_output_count, recipe_level, recipe_stars FROM items`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query items: %w", err)
	}
	defer rows.Close()

	var items []ItemInfo
	for rows.Next() {
		var it ItemInfo
		var isUntradable int
		var outputCount, recipeLevel, recipeStars uint32
		if err := rows.Scan(&it.ItemID, &it.Name, &it.UICategory, &it.ItemLevel, &it.EquipLevel,
			&isUntradable, &outputCount, &recipeLevel, &recipeStars); err != nil {
			return nil, fmt.Errorf("catalog: scan item: %w", err)
		}
		it.IsUntradable = isUntradable != 0
		if outputCount > 0 {
			it.Recipe = &Recipe{
				Output: Ingredient{ItemID: it.ItemID, Count: outputCount},
				Level:  recipeLevel,
				Stars:  recipeStars,
			}
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate items: %w", err)
	}

	if err := c.attachRecipeInputs(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Catalog) attachRecipeInputs(ctx context.Context, items []ItemInfo) error {
	for i := range items {
		if items[i].Recipe == nil {
			continue
		}
		inputs, err := c.recipeInputs(ctx, items[i].ItemID)
		if err != nil {
			return err
		}
		items[i].Recipe.Inputs = inputs
	}
	return nil
}

func (c *Catalog) recipeInputs(ctx context.Context, itemID uint32) ([]Ingredient, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT ingredient_item_id, count FROM recipe_inputs WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("catalog: query recipe inputs for %d: %w", itemID, err)
	}
	defer rows.Close()

	var inputs []Ingredient
	for rows.Next() {
		var in Ingredient
		if err := rows.Scan(&in.ItemID, &in.Count); err != nil {
			return nil, fmt.Errorf("catalog: scan recipe input: %w", err)
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// expandRecipeInputs walks the recipe tree of each id in frontier,
// marking every reachable ingredient id in seen, recursing into
// ingredients that are themselves craftable.
func (c *Catalog) expandRecipeInputs(ctx context.Context, frontier []uint32, seen map[uint32]bool) error {
	if len(frontier) == 0 {
		return nil
	}

	var next []uint32
	for _, id := range frontier {
		inputs, err := c.recipeInputs(ctx, id)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			if seen[in.ItemID] {
				continue
			}
			seen[in.ItemID] = true
			next = append(next, in.ItemID)
		}
	}
	return c.expandRecipeInputs(ctx, next, seen)
}
