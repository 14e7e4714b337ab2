package services

import (
	"reflect"

	"luna/internal/models"
)

// Diff computes the structural difference between two version snapshots.
// List fields are compared by identifier-set membership; the metadata map
// is compared key-wise with strict value equality. For ids present on
// both sides, Common carries the B-side element and no deep comparison is
// performed: a field-level edit behind an unchanged id does not surface
// as a diff. Diff(v, v) yields empty Added/Removed/Changed for every
// field.
func Diff(a, b *models.Version) *models.DiffResult {
	return &models.DiffResult{
		SessionID:     a.SessionID,
		FromVersionID: a.VersionID,
		ToVersionID:   b.VersionID,
		Messages: diffByID(a.Data.Messages, b.Data.Messages, func(m models.Message) string {
			return m.MessageID
		}),
		Presentations: diffByID(a.Data.PresentationRefs, b.Data.PresentationRefs, func(p models.PresentationRef) string {
			return p.ID
		}),
		Metadata: DiffMetadata(a.Data.Metadata, b.Data.Metadata),
	}
}

// diffByID partitions the union of two identifier-keyed lists: present
// only in b -> Added, only in a -> Removed, in both -> Common (b's value).
// Every element of the union lands in exactly one bucket.
func diffByID[T any](a, b []T, id func(T) string) models.ListDiff[T] {
	out := models.ListDiff[T]{
		Added:   []T{},
		Removed: []T{},
		Common:  []T{},
	}

	inA := make(map[string]bool, len(a))
	for _, el := range a {
		inA[id(el)] = true
	}
	inB := make(map[string]bool, len(b))
	for _, el := range b {
		inB[id(el)] = true
	}

	for _, el := range b {
		if inA[id(el)] {
			out.Common = append(out.Common, el)
		} else {
			out.Added = append(out.Added, el)
		}
	}
	for _, el := range a {
		if !inB[id(el)] {
			out.Removed = append(out.Removed, el)
		}
	}
	return out
}

// DiffMetadata compares two metadata maps key-wise. A key on both sides
// with unequal values reports both the old and new value.
func DiffMetadata(a, b map[string]any) models.MapDiff {
	out := models.MapDiff{
		Added:     map[string]any{},
		Removed:   map[string]any{},
		Changed:   map[string]models.ValueChange{},
		Unchanged: map[string]any{},
	}

	for k, bv := range b {
		av, ok := a[k]
		switch {
		case !ok:
			out.Added[k] = bv
		case reflect.DeepEqual(av, bv):
			out.Unchanged[k] = bv
		default:
			out.Changed[k] = models.ValueChange{From: av, To: bv}
		}
	}
	for k, av := range a {
		if _, ok := b[k]; !ok {
			out.Removed[k] = av
		}
	}
	return out
}
