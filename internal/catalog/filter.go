package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFilter parses a query string into a Filter. The grammar is a
// comma-separated list of clauses; each clause is a tag followed by a
// space and pipe-separated options (":cat 34|35"). A clause that does not
// start with a ':' tag is treated as an implicit ":name" filter, so a bare
// "Iron Ore" behaves the same as ":name Iron Ore"; a ':' tag that is not
// recognized is a no-op.
func ParseFilter(query string) (Filter, error) {
	var f Filter
	for _, clause := range strings.Split(query, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}

		tag, rest, _ := strings.Cut(clause, " ")
		var options []string
		if rest != "" {
			options = strings.Split(rest, "|")
		}

		if !strings.HasPrefix(tag, ":") {
			// No ':' tag: the whole clause is a name filter.
			f.NameContains = clause
			continue
		}

		if err := applyTag(&f, tag, options); err != nil {
			return Filter{}, err
		}
	}
	return f, nil
}

func applyTag(f *Filter, tag string, options []string) error {
	switch tag {
	case ":name", ":contains":
		f.NameContains = strings.Join(options, " ")
	case ":cat":
		if len(options) == 0 {
			return fmt.Errorf("catalog: %s requires a category id", tag)
		}
		cat, err := strconv.ParseUint(options[0], 10, 32)
		if err != nil {
			return fmt.Errorf("catalog: invalid %s value %q: %w", tag, options[0], err)
		}
		f.UICategory = uint32(cat)
	case ":ilevel":
		min, max, err := levelRange(options)
		if err != nil {
			return fmt.Errorf("catalog: invalid %s range: %w", tag, err)
		}
		f.MinItemLevel, f.MaxItemLevel = min, max
	default:
		// Unknown tags (:rlevel, :elevel, :leve, :count, :limit, ...) are
		// accepted but have no matching column in this catalog's predicate
		// set, so they are no-ops here.
	}
	return nil
}

func levelRange(options []string) (min, max uint32, err error) {
	if len(options) == 0 {
		return 0, 0, nil
	}
	if v, err := strconv.ParseUint(options[0], 10, 32); err == nil {
		min = uint32(v)
	}
	if v, err := strconv.ParseUint(options[len(options)-1], 10, 32); err == nil {
		max = uint32(v)
	}
	return min, max, nil
}
