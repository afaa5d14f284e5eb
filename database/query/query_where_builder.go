// SPDX-License-Identifier: ice License 1.0

package query

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

const (
	whereBuilderDefaultWhere = "1=1"
)

var ErrWhereBuilderInvalidTimeRange = errors.New("invalid time range")

type whereBuilder struct {
	Params map[string]any
	strings.Builder
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{
		Params: make(map[string]any),
	}
}

func (w *whereBuilder) addParam(filterID, name string, value any) (key string) {
	key = filterID + name
	w.Params[key] = value

	return key
}

func deduplicateSlice[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	j := 0
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		s[j] = v
		j++
	}

	return s[:j]
}

func buildFromSlice[T comparable](builder *whereBuilder, filterID string, s []T, name string) *whereBuilder {
	if len(s) == 0 {
		return builder
	}

	builder.maybeAND()
	builder.WriteString(name)
	s = deduplicateSlice(s)
	if len(s) == 1 {
		// X = :X_name.
		builder.WriteString(" = :")
		builder.WriteString(builder.addParam(filterID, name, s[0]))

		return builder
	}

	// X in (:X_name0, :X_name1, ...).
	builder.WriteString(" IN (")
	for i := range len(s) - 1 {
		builder.WriteRune(':')
		builder.WriteString(builder.addParam(filterID, name+strconv.Itoa(i), s[i]))
		builder.WriteRune(',')
	}
	builder.WriteRune(':')
	builder.WriteString(builder.addParam(filterID, name+strconv.Itoa(len(s)-1), s[len(s)-1]))
	builder.WriteRune(')')

	return builder
}

func (w *whereBuilder) isOnBegin() bool {
	if w.Len() == 1 && w.String() == "(" {
		return true
	}

	s := w.String()

	return s[len(s)-1] == '(' || s[len(s)-2:] == "( "
}

func (w *whereBuilder) maybeAND() {
	if w.Len() == 0 || w.isOnBegin() {
		return
	}

	w.WriteString(" AND ")
}

// applyFilterTags renders one EXISTS-correlated subquery against
// event_tags per tag letter in tags: conjunction across letters,
// disjunction within one letter's values.
func (w *whereBuilder) applyFilterTags(filterID string, tags model.TagMap) {
	const valuesMax = 21

	if len(tags) == 0 {
		return
	}

	tagID := 0
	for tag, values := range tags {
		if len(values) > valuesMax {
			values = values[:valuesMax]
		}

		w.maybeAND()
		tagID++
		w.WriteString("EXISTS (select 1 from event_tags where event_id = id AND tag_name = :")
		w.WriteString(w.addParam(filterID, "tag"+strconv.Itoa(tagID), tag))
		w.WriteString(" AND tag_value IN (")
		for i, value := range values {
			if i > 0 {
				w.WriteRune(',')
			}
			w.WriteRune(':')
			w.WriteString(w.addParam(filterID, "tagvalue"+strconv.Itoa(tagID<<8|i+1), value))
		}
		w.WriteString("))")
	}
}

func isFilterEmpty(filter *model.Filter) bool {
	return len(filter.IDs) == 0 &&
		len(filter.Kinds) == 0 &&
		len(filter.Authors) == 0 &&
		len(filter.Tags) == 0 &&
		filter.Since == nil &&
		filter.Until == nil
}

func (w *whereBuilder) applyTimeRange(filterID string, since, until *model.Timestamp) error {
	if since != nil && until != nil {
		if *since == *until {
			w.maybeAND()
			w.WriteString("created_at = :")
			w.WriteString(w.addParam(filterID, "timestamp", *since))

			return nil
		} else if *since > *until {
			return errors.Wrapf(ErrWhereBuilderInvalidTimeRange, "since [%d] is greater than until [%d]", *since, *until)
		}
	}

	// If a filter includes the `since` property, events with `created_at` greater than or equal to since are considered to match the filter.
	if since != nil {
		w.maybeAND()
		w.WriteString("created_at >= :")
		w.WriteString(w.addParam(filterID, "since", *since))
	}

	// The `until` property is similar except that `created_at` must be less than or equal to `until`.
	if until != nil {
		w.maybeAND()
		w.WriteString("created_at <= :")
		w.WriteString(w.addParam(filterID, "until", *until))
	}

	return nil
}

func (w *whereBuilder) applyFilter(idx int, filter *model.Filter) error {
	if isFilterEmpty(filter) {
		return nil
	}

	filterID := "filter" + strconv.Itoa(idx) + "_"

	w.WriteRune('(') // Begin the filter section.
	buildFromSlice(w, filterID, filter.IDs, "id")
	buildFromSlice(w, filterID, filter.Kinds, "kind")
	buildFromSlice(w, filterID, filter.Authors, "pubkey")
	if err := w.applyTimeRange(filterID, filter.Since, filter.Until); err != nil {
		return err
	}
	w.applyFilterTags(filterID, filter.Tags)
	w.WriteRune(')') // End the filter section.

	return nil
}
