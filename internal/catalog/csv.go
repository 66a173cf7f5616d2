package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// LoadCSV ingests a catalog CSV into the items/recipe_inputs tables.
// Each row is: item_id,name,ui_category,item_level,equip_level,
// is_untradable,recipe_level,recipe_stars,recipe_output_count,
// ingredient_item_id,ingredient_count. A non-craftable item supplies
// empty recipe fields; a multi-ingredient recipe repeats the item_id
// row once per ingredient.
func (c *Catalog) LoadCSV(ctx context.Context, r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("catalog: read csv header: %w", err)
	}
	if len(header) < 9 {
		return fmt.Errorf("catalog: csv header has %d columns, want at least 9", len(header))
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin csv load: %w", err)
	}
	defer tx.Rollback()

	itemStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (item_id, name, ui_category, item_level, equip_level,
			is_untradable, recipe_level, recipe_stars, recipe_output_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			name=excluded.name, ui_category=excluded.ui_category,
			item_level=excluded.item_level, equip_level=excluded.equip_level,
			is_untradable=excluded.is_untradable, recipe_level=excluded.recipe_level,
			recipe_stars=excluded.recipe_stars, recipe_output_count=excluded.recipe_output_count`)
	if err != nil {
		return fmt.Errorf("catalog: prepare item upsert: %w", err)
	}
	defer itemStmt.Close()

	inputStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recipe_inputs (item_id, ingredient_item_id, count) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("catalog: prepare recipe input insert: %w", err)
	}
	defer inputStmt.Close()

	seenItems := make(map[uint32]bool)
	for lineNum := 2; ; lineNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("catalog: read csv row %d: %w", lineNum, err)
		}

		rec, err := parseCSVRow(row)
		if err != nil {
			return fmt.Errorf("catalog: parse csv row %d: %w", lineNum, err)
		}

		if !seenItems[rec.itemID] {
			untradable := 0
			if rec.isUntradable {
				untradable = 1
			}
			if _, err := itemStmt.ExecContext(ctx, rec.itemID, rec.name, rec.uiCategory,
				rec.itemLevel, rec.equipLevel, untradable, rec.recipeLevel, rec.recipeStars,
				rec.recipeOutputCount); err != nil {
				return fmt.Errorf("catalog: upsert item %d: %w", rec.itemID, err)
			}
			seenItems[rec.itemID] = true
		}

		if rec.hasIngredient {
			if _, err := inputStmt.ExecContext(ctx, rec.itemID, rec.ingredientID, rec.ingredientCount); err != nil {
				return fmt.Errorf("catalog: insert recipe input for %d: %w", rec.itemID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit csv load: %w", err)
	}
	return nil
}

type csvRow struct {
	itemID            uint32
	name              string
	uiCategory        uint32
	itemLevel         uint32
	equipLevel        uint32
	isUntradable      bool
	recipeLevel       uint32
	recipeStars       uint32
	recipeOutputCount uint32
	hasIngredient     bool
	ingredientID      uint32
	ingredientCount   uint32
}

func parseCSVRow(row []string) (csvRow, error) {
	var rec csvRow

	itemID, err := strconv.ParseUint(row[0], 10, 32)
	if err != nil {
		return csvRow{}, fmt.Errorf("item_id: %w", err)
	}
	rec.itemID = uint32(itemID)
	rec.name = row[1]
	rec.uiCategory = parseUintOr(row[2], 0)
	rec.itemLevel = parseUintOr(row[3], 0)
	rec.equipLevel = parseUintOr(row[4], 0)
	rec.isUntradable = row[5] == "1" || row[5] == "true"
	rec.recipeLevel = parseUintOr(row[6], 0)
	rec.recipeStars = parseUintOr(row[7], 0)
	rec.recipeOutputCount = parseUintOr(row[8], 0)

	if len(row) >= 11 && row[9] != "" {
		ingID, err := strconv.ParseUint(row[9], 10, 32)
		if err != nil {
			return csvRow{}, fmt.Errorf("ingredient_item_id: %w", err)
		}
		rec.hasIngredient = true
		rec.ingredientID = uint32(ingID)
		rec.ingredientCount = parseUintOr(row[10], 1)
	}

	return rec, nil
}

func parseUintOr(s string, def uint32) uint32 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return def
	}
	return uint32(v)
}
