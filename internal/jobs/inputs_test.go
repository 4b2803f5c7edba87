package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCrop(t *testing.T) {
	crop, err := ParseCrop("10, 20,110,70")
	require.NoError(t, err)
	minX, minY, maxX, maxY, ok := crop.Bounds()
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 110, 70}, []float64{minX, minY, maxX, maxY})
	assert.Equal(t, Point{X: 110, Y: 20}, crop["topRight"])

	crop, err = ParseCrop("")
	require.NoError(t, err)
	assert.Nil(t, crop)

	for _, bad := range []string{"1,2,3", "a,b,c,d", "5,5,5,9"} {
		_, err := ParseCrop(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePages(t *testing.T) {
	tests := []struct {
		in      string
		count   int
		want    []int
		wantErr bool
	}{
		{in: "", count: 3, want: []int{1, 2, 3}},
		{in: "3,1", count: 3, want: []int{1, 3}},
		{in: "2-4, 3", count: 5, want: []int{2, 3, 4}},
		{in: "0", count: 3, wantErr: true},
		{in: "4", count: 3, wantErr: true},
		{in: "3-1", count: 3, wantErr: true},
		{in: "x", count: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePages(tt.in, tt.count)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
