package imaging

import (
	"image"
	"math"
	"sort"
)

// TextRegion is an area of a frame dense in short horizontal strokes, which
// is what burned-in annotation text looks like. Regions are used to propose
// a tag box for a capture device model that has none configured.
type TextRegion struct {
	Box   BoundingBox `json:"box"`
	Score float64     `json:"score"`
}

// Windows sized for annotation text, from a short tag up to a header line.
var textWindows = []image.Point{
	{40, 14},
	{80, 20},
	{120, 28},
	{200, 40},
}

const edgeStep = 30

// FindTextRegions slides text-sized windows over img and keeps those whose
// edge density and stroke direction look like text, merging overlaps.
//
// Each window is scored by how much of its edge structure runs along rows,
// weighted by how close its edge density is to that of a typical line of
// annotation text. Windows with fewer than 5% or more than 40% edge pixels
// are ignored: the former are background, the latter speckle or image
// content.
//
// Parameters:
//   - img: The frame, usually before any thresholding.
//   - minScore: Regions scoring below this (0..1) are dropped.
//
// Returns the merged regions sorted by score, best first. An image smaller
// than the smallest window has no regions.
func FindTextRegions(img *image.Gray, minScore float64) []TextRegion {
	b := img.Bounds()
	edges := edgeMap(img)

	var found []TextRegion
	for _, win := range textWindows {
		for y := 0; y+win.Y <= b.Dy(); y += win.Y / 2 {
			for x := 0; x+win.X <= b.Dx(); x += win.X / 2 {
				r := image.Rect(x, y, x+win.X, y+win.Y)
				density := edgeDensity(edges, r)
				if density < 0.05 || density > 0.4 {
					continue
				}
				score := horizontalScore(edges, r) * (1 - math.Abs(density-0.2)/0.2)
				if score < minScore {
					continue
				}
				found = append(found, TextRegion{
					Box:   BoundingBox{Min: r.Min.Add(b.Min), Max: r.Max.Add(b.Min)},
					Score: math.Round(score*1000) / 1000,
				})
			}
		}
	}

	merged := mergeRegions(found)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

// edgeMap marks pixels that differ from their right or lower neighbour by
// more than edgeStep. The last row and column are never edges.
func edgeMap(img *image.Gray) [][]bool {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	edges := make([][]bool, h)
	for y := 0; y < h; y++ {
		edges[y] = make([]bool, w)
		if y == h-1 {
			continue
		}
		row := img.Pix[y*img.Stride:]
		next := img.Pix[(y+1)*img.Stride:]
		for x := 0; x < w-1; x++ {
			c := int(row[x])
			if absInt(c-int(row[x+1])) > edgeStep || absInt(c-int(next[x])) > edgeStep {
				edges[y][x] = true
			}
		}
	}
	return edges
}

func edgeDensity(edges [][]bool, r image.Rectangle) float64 {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges[y][x] {
				n++
			}
		}
	}
	return float64(n) / float64(r.Dx()*r.Dy())
}

// horizontalScore is the share of edge runs that run along rows.
func horizontalScore(edges [][]bool, r image.Rectangle) float64 {
	across, down := 0, 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		in := false
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges[y][x] && !in {
				across++
			}
			in = edges[y][x]
		}
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		in := false
		for y := r.Min.Y; y < r.Max.Y; y++ {
			if edges[y][x] && !in {
				down++
			}
			in = edges[y][x]
		}
	}
	if across+down == 0 {
		return 0
	}
	return float64(across) / float64(across+down)
}

// mergeRegions folds each region into the first earlier one it overlaps.
func mergeRegions(regions []TextRegion) []TextRegion {
	var merged []TextRegion
	for _, r := range regions {
		folded := false
		for i := range merged {
			if r.Box.Rect().Overlaps(merged[i].Box.Rect()) {
				u := r.Box.Rect().Union(merged[i].Box.Rect())
				merged[i].Box = BoundingBox{Min: u.Min, Max: u.Max}
				merged[i].Score = math.Max(r.Score, merged[i].Score)
				folded = true
				break
			}
		}
		if !folded {
			merged = append(merged, r)
		}
	}
	return merged
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
