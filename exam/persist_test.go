package exam

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbank-server/models"
)

// fakeRow scans like pgx: NULL only fits pointer destinations.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *int:
			v, ok := r.values[i].(int)
			if !ok {
				return fmt.Errorf("can't scan into dest[%d]: cannot scan NULL into *int", i)
			}
			*d = v
		case **int:
			if r.values[i] == nil {
				*d = nil
				continue
			}
			v := r.values[i].(int)
			*d = &v
		case *string:
			*d = r.values[i].(string)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

type fakeQuerier struct{ row fakeRow }

func (q fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row { return q.row }

func TestLoadParentExamWithoutPromotion(t *testing.T) {
	parent, err := loadParentExam(context.Background(), fakeQuerier{fakeRow{values: []any{3, "Finals", "final", nil}}}, 3)
	require.NoError(t, err)
	assert.Equal(t, "Finals", parent.Title)
	assert.Nil(t, parent.PromotionID)

	parent, err = loadParentExam(context.Background(), fakeQuerier{fakeRow{values: []any{3, "Finals", "final", 7}}}, 3)
	require.NoError(t, err)
	require.NotNil(t, parent.PromotionID)
	assert.Equal(t, 7, *parent.PromotionID)
}

func TestLoadParentExamNotFound(t *testing.T) {
	_, err := loadParentExam(context.Background(), fakeQuerier{fakeRow{err: pgx.ErrNoRows}}, 3)
	assert.ErrorIs(t, err, ErrParentExamNotFound)
}

func TestBuildSavedExamsQuery(t *testing.T) {
	query, args := buildSavedExamsQuery(models.SavedExamFilter{})
	assert.Empty(t, args)
	// Subjects of a deleted promotion are still listed
	assert.Contains(t, query, "LEFT JOIN promotions p")
	assert.Contains(t, query, "COALESCE(p.name, '')")

	query, args = buildSavedExamsQuery(models.SavedExamFilter{PromotionID: 2, ExamType: "final"})
	assert.Equal(t, []any{2, "final"}, args)
	assert.Contains(t, query, "s.promotion_id = $1")
	assert.Contains(t, query, "parent.exam_type = $2")
	assert.NotContains(t, query, "s.parent_exam_id = $")
}
