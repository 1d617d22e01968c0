package resizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widthOf(t *testing.T, r *Resizer, key string) int {
	t.Helper()
	for _, c := range r.Widths() {
		if c.Key == key {
			return c.Width
		}
	}
	t.Fatalf("column %q not found", key)
	return 0
}

func TestNew_DefaultColumns(t *testing.T) {
	cols := New().Widths()
	require.Len(t, cols, 8)
	assert.Equal(t, "TYPE", cols[0].Key)
	assert.Equal(t, "FILE LOCATION", cols[7].Key)
	for _, c := range cols {
		assert.Equal(t, DefaultWidth, c.Width)
	}
}

func TestResize_PlusFortyOnlyAffectsOneColumn(t *testing.T) {
	r := New()
	before := r.Widths()

	_, err := r.BeginResize("EVENT", 300)
	require.NoError(t, err)
	col, err := r.Move(340)
	require.NoError(t, err)
	r.EndResize()

	assert.Equal(t, DefaultWidth+40, col.Width)
	after := r.Widths()
	for i := range before {
		if before[i].Key == "EVENT" {
			assert.Equal(t, before[i].Width+40, after[i].Width)
			continue
		}
		assert.Equal(t, before[i], after[i])
	}
}

func TestResize_ClampsAtMinimum(t *testing.T) {
	r := New()
	_, err := r.BeginResize("DATE", 500)
	require.NoError(t, err)

	col, err := r.Move(0)
	require.NoError(t, err)
	assert.Equal(t, MinWidth, col.Width)

	col, err = r.Move(480)
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth-20, col.Width, "width follows the pointer from the drag start")
}

func TestResize_SecondDragStartsFromNewWidth(t *testing.T) {
	r := New()
	r.BeginResize("ROLE", 0)
	r.Move(25)
	r.EndResize()

	r.BeginResize("ROLE", 100)
	r.Move(110)
	r.EndResize()

	assert.Equal(t, DefaultWidth+35, widthOf(t, r, "ROLE"))
}

func TestResize_OneDragAtATime(t *testing.T) {
	r := New()
	_, err := r.BeginResize("TYPE", 0)
	require.NoError(t, err)

	_, err = r.BeginResize("AWARDEE", 0)
	assert.ErrorIs(t, err, ErrResizeInProgress)
	assert.Equal(t, "TYPE", r.Active())

	r.EndResize()
	_, err = r.BeginResize("AWARDEE", 0)
	assert.NoError(t, err)
}

func TestResize_Errors(t *testing.T) {
	r := New()

	_, err := r.BeginResize("NOPE", 0)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = r.Move(10)
	assert.ErrorIs(t, err, ErrNotResizing)

	r.EndResize()
	assert.Empty(t, r.Active())
}

func TestNewWithColumns_RaisesNarrowDefault(t *testing.T) {
	r := NewWithColumns([]string{"a", "b"}, 10)
	assert.Equal(t, []Column{{Key: "a", Width: MinWidth}, {Key: "b", Width: MinWidth}}, r.Widths())
}
