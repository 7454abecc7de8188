package imaging

import (
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// annotatedFrame renders a line of white annotation text on a black
// 400x300 frame with the baseline at (60, 120), and returns the text bounds
// grown by the one-pixel edge fringe above and to the left.
func annotatedFrame(text string) (*image.Gray, image.Rectangle) {
	img := image.NewGray(image.Rect(0, 0, 400, 300))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(60), Y: fixed.I(120)},
	}
	d.DrawString(text)
	return img, image.Rect(59, 120-12, 60+7*len(text), 120+2)
}

func TestFindTextRegions(t *testing.T) {
	img, text := annotatedFrame("RTA 12.5CM GA=12W3D")

	regions := FindTextRegions(img, 0)
	if len(regions) == 0 {
		t.Fatal("no text regions found")
	}
	for i, r := range regions {
		if !r.Box.Rect().Overlaps(text) {
			t.Errorf("region %d %s does not touch the text at %v", i, r.Box, text)
		}
		if i > 0 && r.Score > regions[i-1].Score {
			t.Errorf("regions not sorted: %v before %v", regions[i-1].Score, r.Score)
		}
	}
}

func TestFindTextRegions_Blank(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 400, 300))
	if regions := FindTextRegions(img, 0); len(regions) != 0 {
		t.Errorf("blank frame gave %d regions", len(regions))
	}
}

func TestFindTextRegions_MinScore(t *testing.T) {
	img, _ := annotatedFrame("C1-5")
	if regions := FindTextRegions(img, 1.1); len(regions) != 0 {
		t.Errorf("score above 1 should filter everything, got %v", regions)
	}
}

func TestFindTextRegions_SmallImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 5))
	if regions := FindTextRegions(img, 0); len(regions) != 0 {
		t.Errorf("image smaller than every window gave %v", regions)
	}
}

func TestEdgeMap(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(1, 1, color.Gray{Y: 255})

	edges := edgeMap(img)
	want := map[image.Point]bool{{0, 1}: true, {1, 0}: true, {1, 1}: true}
	for y := range edges {
		for x := range edges[y] {
			if edges[y][x] != want[image.Pt(x, y)] {
				t.Errorf("edge at (%d,%d) = %v", x, y, edges[y][x])
			}
		}
	}
}

func TestHorizontalScore(t *testing.T) {
	edges := make([][]bool, 10)
	for y := range edges {
		edges[y] = make([]bool, 10)
	}
	// One horizontal stroke: 1 run along its row, 8 one-pixel runs down.
	for x := 1; x < 9; x++ {
		edges[5][x] = true
	}

	got := horizontalScore(edges, image.Rect(0, 0, 10, 10))
	if want := 1.0 / 9.0; got != want {
		t.Errorf("horizontalScore = %v, want %v", got, want)
	}
	if got := horizontalScore(edges, image.Rect(0, 0, 3, 3)); got != 0 {
		t.Errorf("empty window score = %v, want 0", got)
	}
}

func TestMergeRegions(t *testing.T) {
	regions := []TextRegion{
		{Box: Box(0, 0, 10, 10), Score: 0.4},
		{Box: Box(5, 5, 20, 12), Score: 0.7},
		{Box: Box(50, 50, 60, 60), Score: 0.2},
	}
	got := mergeRegions(regions)
	if len(got) != 2 {
		t.Fatalf("got %d regions, want 2", len(got))
	}
	if got[0].Box != Box(0, 0, 20, 12) || got[0].Score != 0.7 {
		t.Errorf("merged = %+v", got[0])
	}
	if got[1].Box != Box(50, 50, 60, 60) {
		t.Errorf("separate = %+v", got[1])
	}
}
