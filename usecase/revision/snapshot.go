package revision

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fastygo/segments/domain"
)

// Snapshot keys, in the order diffs describe them.
const (
	fieldID          = "id"
	fieldTableID     = "table_id"
	fieldCreatorID   = "creator_id"
	fieldName        = "name"
	fieldDescription = "description"
	fieldDefinition  = "definition"
	fieldIsActive    = "is_active"
)

var describedFields = []string{fieldName, fieldDescription, fieldDefinition, fieldIsActive}

// Serialize captures every segment field except the timestamps. The creator
// is never resolved. Values are normalized through JSON so that a fresh
// snapshot compares equal to one read back from storage.
func Serialize(segment *domain.Segment) domain.Snapshot {
	if segment == nil {
		return nil
	}
	var description any
	if segment.Description != nil {
		description = *segment.Description
	}
	raw := map[string]any{
		fieldID:          segment.ID,
		fieldTableID:     segment.TableID,
		fieldCreatorID:   segment.CreatorID,
		fieldName:        segment.Name,
		fieldDescription: description,
		fieldDefinition:  map[string]any(segment.Definition.Clone()),
		fieldIsActive:    segment.IsActive,
	}
	return normalize(raw)
}

// RevertTo returns a copy of current whose name, description and definition
// come from snap. Identity, ownership and the active flag are kept.
func RevertTo(current *domain.Segment, snap domain.Snapshot) (*domain.Segment, error) {
	if current == nil {
		return nil, domain.ErrSegmentNotFound
	}

	name, ok := snap[fieldName].(string)
	if !ok || name == "" {
		return nil, domain.Invalidf("snapshot has no usable name")
	}

	var description *string
	switch d := snap[fieldDescription].(type) {
	case nil:
	case string:
		description = &d
	default:
		return nil, domain.Invalidf("snapshot description has type %T", d)
	}

	def, err := domain.ParseDefinition(snap[fieldDefinition])
	if err != nil {
		return nil, err
	}

	reverted := current.Clone()
	reverted.Apply(name, description, def)
	return reverted, nil
}

// DescribeDiff lists a human readable line for each described field that
// differs between the two snapshots. A nil before means creation.
func DescribeDiff(before, after domain.Snapshot) []string {
	if before == nil {
		if after == nil {
			return []string{}
		}
		return []string{"created this segment"}
	}

	changes := []string{}
	for _, field := range describedFields {
		oldVal, newVal := before[field], after[field]
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		changes = append(changes, fmt.Sprintf("changed %s from %s to %s", field, render(oldVal), render(newVal)))
	}
	return changes
}

func render(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}

func normalize(raw map[string]any) domain.Snapshot {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return domain.Snapshot(raw)
	}
	var out domain.Snapshot
	if err := json.Unmarshal(encoded, &out); err != nil {
		return domain.Snapshot(raw)
	}
	return out
}
