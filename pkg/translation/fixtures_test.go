package translation

import (
	"time"

	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/persistence"
)

type widget struct {
	ID         *int64
	Name       *string
	Price      *float64
	Tags       []string
	Created    *time.Time
	CreatedBy  *string
	Modified   *time.Time
	ModifiedBy *string
}

type widgetRecord struct {
	ID         int64
	Name       string
	Price      float64
	Tags       string
	Created    time.Time
	CreatedBy  string
	Modified   time.Time
	ModifiedBy string
}

func (r *widgetRecord) GetID() int64 { return r.ID }

var widgetFields = MustTypeMapper(func() *widget { return &widget{} },
	NewField("id", fieldtype.Int, func(w *widget) *int64 { return w.ID }, func(w *widget, v *int64) { w.ID = v }),
	NewField("name", fieldtype.String, func(w *widget) *string { return w.Name }, func(w *widget, v *string) { w.Name = v }),
	NewField("price", fieldtype.Float, func(w *widget) *float64 { return w.Price }, func(w *widget, v *float64) { w.Price = v }),
	NewField("tags", fieldtype.Any, func(w *widget) []string { return w.Tags }, func(w *widget, v []string) { w.Tags = v }),
	NewField("created", fieldtype.Time, func(w *widget) *time.Time { return w.Created }, func(w *widget, v *time.Time) { w.Created = v }),
	NewField("createdBy", fieldtype.String, func(w *widget) *string { return w.CreatedBy }, func(w *widget, v *string) { w.CreatedBy = v }),
	NewField("modified", fieldtype.Time, func(w *widget) *time.Time { return w.Modified }, func(w *widget, v *time.Time) { w.Modified = v }),
	NewField("modifiedBy", fieldtype.String, func(w *widget) *string { return w.ModifiedBy }, func(w *widget, v *string) { w.ModifiedBy = v }),
)

var widgetRecordFields = MustTypeMapper(func() *widgetRecord { return &widgetRecord{} },
	NewField("id", fieldtype.Int, func(r *widgetRecord) int64 { return r.ID }, func(r *widgetRecord, v int64) { r.ID = v }),
	NewField("name", fieldtype.String, func(r *widgetRecord) string { return r.Name }, func(r *widgetRecord, v string) { r.Name = v }),
	NewField("price", fieldtype.Float, func(r *widgetRecord) float64 { return r.Price }, func(r *widgetRecord, v float64) { r.Price = v }),
	NewField("tags", fieldtype.String, func(r *widgetRecord) string { return r.Tags }, func(r *widgetRecord, v string) { r.Tags = v }),
	NewField("created", fieldtype.Time, func(r *widgetRecord) time.Time { return r.Created }, func(r *widgetRecord, v time.Time) { r.Created = v }),
	NewField("createdBy", fieldtype.String, func(r *widgetRecord) string { return r.CreatedBy }, func(r *widgetRecord, v string) { r.CreatedBy = v }),
	NewField("modified", fieldtype.Time, func(r *widgetRecord) time.Time { return r.Modified }, func(r *widgetRecord, v time.Time) { r.Modified = v }),
	NewField("modifiedBy", fieldtype.String, func(r *widgetRecord) string { return r.ModifiedBy }, func(r *widgetRecord, v string) { r.ModifiedBy = v }),
)

type widgetTranslator = Translator[*widget, *widgetRecord, int64]

func newWidgetTranslator(hooks ...Hooks[*widget, *widgetRecord]) (*widgetTranslator, error) {
	return New(Config[*widget, *widgetRecord, int64]{
		Client:     widgetFields,
		Persistent: widgetRecordFields,
		Mappers: []FieldMapper[*widget, *widgetRecord]{
			MapField[*widget, *widgetRecord]("tags", "tags", DelimitedListConverter{}),
		},
		Hooks: hooks,
	})
}

func mustWidgetTranslator(hooks ...Hooks[*widget, *widgetRecord]) *widgetTranslator {
	tr, err := newWidgetTranslator(hooks...)
	if err != nil {
		panic(err)
	}
	return tr
}

// countingMapper counts conversions per direction.
type countingMapper struct {
	FieldMapper[*widget, *widgetRecord]
	toPersistent int
	toClient     int
}

func (m *countingMapper) ConvertToPersistent(c *ObjectWrapper[*widget], p *ObjectWrapper[*widgetRecord], pc *persistence.Context) (bool, error) {
	m.toPersistent++
	return m.FieldMapper.ConvertToPersistent(c, p, pc)
}

func (m *countingMapper) ConvertToClient(p *ObjectWrapper[*widgetRecord], c *ObjectWrapper[*widget], pc *persistence.Context) error {
	m.toClient++
	return m.FieldMapper.ConvertToClient(p, c, pc)
}

func ptr[T any](v T) *T { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
