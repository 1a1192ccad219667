package transport

import (
	"strings"

	"github.com/fastygo/segments/domain"
)

// FilterExpression is the query-builder form of a segment definition: one
// operator applied to a field with optional arguments.
type FilterExpression struct {
	Field     *domain.FieldReference `json:"field"`
	Operator  string                 `json:"operator"`
	Arguments []any                  `json:"arguments,omitempty"`
}

func (f *FilterExpression) IsValid() bool {
	if f == nil || strings.TrimSpace(f.Operator) == "" || f.Field == nil {
		return false
	}
	return f.Field.FieldID > 0 || strings.TrimSpace(f.Field.Name) != ""
}

func (f *FilterExpression) Dimension() *domain.FieldReference {
	if f == nil {
		return nil
	}
	return f.Field
}

// Definition renders the expression as {"filter": [op, ["field", ref], args...]}.
func (f *FilterExpression) Definition() map[string]any {
	var ref any = f.Field.Name
	if f.Field.FieldID > 0 {
		ref = f.Field.FieldID
	}
	clause := []any{strings.TrimSpace(f.Operator), []any{"field", ref}}
	clause = append(clause, f.Arguments...)
	out := map[string]any{"filter": clause}
	if f.Field.TableID > 0 {
		out["source_table"] = f.Field.TableID
	}
	return out
}

var _ domain.DefinitionSource = (*FilterExpression)(nil)

// CreateSegmentRequest carries either a raw definition or a filter expression.
// CreatorID defaults to the caller.
type CreateSegmentRequest struct {
	TableID     int64             `json:"table_id"`
	CreatorID   int64             `json:"creator_id,omitempty"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Definition  any               `json:"definition,omitempty"`
	Filter      *FilterExpression `json:"filter,omitempty"`
}

func (r CreateSegmentRequest) ToDomain(callerID int64) (domain.NewSegment, error) {
	def, err := resolveDefinition(r.Definition, r.Filter)
	if err != nil {
		return domain.NewSegment{}, err
	}
	creatorID := r.CreatorID
	if creatorID == 0 {
		creatorID = callerID
	}
	return domain.NewSegment{
		TableID:     r.TableID,
		CreatorID:   creatorID,
		Name:        r.Name,
		Description: r.Description,
		Definition:  def,
	}, nil
}

type UpdateSegmentRequest struct {
	Name            string            `json:"name"`
	Description     *string           `json:"description,omitempty"`
	Definition      any               `json:"definition,omitempty"`
	Filter          *FilterExpression `json:"filter,omitempty"`
	RevisionMessage string            `json:"revision_message"`
}

func (r UpdateSegmentRequest) ToDomain() (domain.SegmentChanges, error) {
	def, err := resolveDefinition(r.Definition, r.Filter)
	if err != nil {
		return domain.SegmentChanges{}, err
	}
	return domain.SegmentChanges{
		Name:            r.Name,
		Description:     r.Description,
		Definition:      def,
		RevisionMessage: r.RevisionMessage,
	}, nil
}

type RevertRequest struct {
	RevisionID int64 `json:"revision_id"`
}

func resolveDefinition(raw any, filter *FilterExpression) (domain.Definition, error) {
	if filter != nil {
		return domain.DefinitionFrom(filter)
	}
	return domain.ParseDefinition(raw)
}
