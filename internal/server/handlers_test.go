package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

// createTestFrameFile writes a width x height gray PNG frame export and
// returns its path.
func createTestFrameFile(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}

	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// callTool runs a tools/call request and decodes the text content into out.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, out interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil || out == nil {
		return resp
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("failed to decode %s result: %v\n%s", name, err, text)
	}
	return resp
}

func TestHandleToolsCall_TagExtract(t *testing.T) {
	s := newTestServer("c-1", 91)
	path := createTestFrameFile(t, 400, 300)

	var got struct {
		Path       string `json:"path"`
		Type       string `json:"type"`
		Model      string `json:"model"`
		Tag        string `json:"tag"`
		Confidence int    `json:"confidence"`
		Attempts   int    `json:"attempts"`
		State      string `json:"state"`
	}
	resp := callTool(t, s, "tag_extract", map[string]interface{}{"path": path, "model": "V830"}, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	if got.Tag != "C1" || got.Confidence != 91 || got.Attempts != 1 || got.State != "accept" {
		t.Errorf("got %+v", got)
	}
	if got.Type != "2d image" || got.Model != "V830" {
		t.Errorf("type/model = %q/%q", got.Type, got.Model)
	}
}

func TestHandleToolsCall_TagExtract_UnknownModel(t *testing.T) {
	s := newTestServer("C1", 91)
	path := createTestFrameFile(t, 400, 300)

	var got struct {
		Tag string `json:"tag"`
	}
	resp := callTool(t, s, "tag_extract", map[string]interface{}{"path": path}, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if got.Tag != vocab.Unknown {
		t.Errorf("tag = %q, want Unknown", got.Tag)
	}
}

func TestHandleToolsCall_NonExistentFile(t *testing.T) {
	s := newTestServer("C1", 91)
	for _, tool := range []string{"tag_extract", "tag_extract_fields", "tag_preprocess", "tag_box_overlay"} {
		resp := callTool(t, s, tool, map[string]interface{}{"path": "/nonexistent/frame.png", "model": "V830"}, nil)
		if resp.Error == nil {
			t.Errorf("%s: expected error for missing file", tool)
			continue
		}
		if resp.Error.Code != -32000 {
			t.Errorf("%s: Error.Code = %d, want -32000", tool, resp.Error.Code)
		}
	}
}

func TestHandleToolsCall_MissingPath(t *testing.T) {
	s := newTestServer("C1", 91)
	resp := callTool(t, s, "tag_extract", map[string]interface{}{}, nil)
	if resp.Error == nil {
		t.Error("expected error when path is missing")
	}
}

func TestHandleToolsCall_TagExtractFields(t *testing.T) {
	s := newTestServer("14.5cm", 70)
	path := createTestFrameFile(t, 400, 300)

	var got tagExtractFieldsResult
	resp := callTool(t, s, "tag_extract_fields", map[string]interface{}{"path": path, "tag": "C2"}, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	if got.Tag != "C2" {
		t.Errorf("tag = %q, want C2", got.Tag)
	}
	depth := got.Fields["Depth"]
	if !depth.Found || depth.Text != "14.5cm" || depth.Value != 14.5 {
		t.Errorf("Depth = %+v", depth)
	}
}

func TestHandleToolsCall_TagPreprocess(t *testing.T) {
	s := newTestServer("C1", 91)
	path := createTestFrameFile(t, 400, 300)

	var all tagPreprocessResult
	resp := callTool(t, s, "tag_preprocess", map[string]interface{}{"path": path, "model": "V830"}, &all)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if len(all.Candidates) != 12 {
		t.Fatalf("got %d candidates, want 12", len(all.Candidates))
	}
	for i, c := range all.Candidates {
		if c.Index != i || c.ImageResult == nil || c.MimeType != "image/png" {
			t.Errorf("candidate %d: %+v", i, c)
		}
	}
	// 215x115 region, doubled for scale 2.
	if all.Candidates[0].Width != 215 || all.Candidates[11].Width != 430 {
		t.Errorf("widths = %d, %d", all.Candidates[0].Width, all.Candidates[11].Width)
	}

	var one tagPreprocessResult
	resp = callTool(t, s, "tag_preprocess", map[string]interface{}{
		"path":   path,
		"box":    [][]int{{0, 0}, {20, 10}},
		"index":  7,
		"invert": true,
	}, &one)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if len(one.Candidates) != 1 || one.Candidates[0].Index != 7 {
		t.Errorf("got %+v", one.Candidates)
	}
	if one.Candidates[0].Config.Ball != 1 {
		t.Errorf("candidate 7 config = %+v", one.Candidates[0].Config)
	}
}

func TestHandleToolsCall_TagPreprocess_NoBox(t *testing.T) {
	s := newTestServer("C1", 91)
	path := createTestFrameFile(t, 400, 300)

	resp := callTool(t, s, "tag_preprocess", map[string]interface{}{"path": path, "model": "Voluson"}, nil)
	if resp.Error == nil {
		t.Error("expected error for a model without box")
	}

	resp = callTool(t, s, "tag_preprocess", map[string]interface{}{"path": path, "model": "V830", "index": 12}, nil)
	if resp.Error == nil {
		t.Error("expected error for index out of range")
	}
}

func TestHandleToolsCall_InvalidExplicitBox(t *testing.T) {
	s := newTestServer("C1", 91)
	path := createTestFrameFile(t, 400, 300)

	for _, tool := range []string{"tag_preprocess", "tag_box_overlay"} {
		for _, box := range [][][]int{
			{{80, 45}, {30, 15}},
			{{-5, 0}, {20, 10}},
		} {
			resp := callTool(t, s, tool, map[string]interface{}{"path": path, "box": box}, nil)
			if resp.Error == nil {
				t.Errorf("%s: expected error for box %v", tool, box)
			}
		}
	}
}

func TestHandleToolsCall_TagBoxOverlay(t *testing.T) {
	s := newTestServer("C1", 91)
	path := createTestFrameFile(t, 400, 300)

	var got struct {
		Width  int     `json:"width"`
		Height int     `json:"height"`
		Box    [][]int `json:"box"`
	}
	resp := callTool(t, s, "tag_box_overlay", map[string]interface{}{"path": path, "model": "V830", "color": "#00FF00"}, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if got.Width != 400 || got.Height != 300 {
		t.Errorf("size = %dx%d, want 400x300", got.Width, got.Height)
	}
	if len(got.Box) != 2 || got.Box[1][0] != 255 || got.Box[1][1] != 190 {
		t.Errorf("box = %v", got.Box)
	}
}

func TestHandleToolsCall_TagModels(t *testing.T) {
	s := newTestServer("C1", 91)

	var got tagModelsResult
	resp := callTool(t, s, "tag_models", nil, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if len(got.Models) != 1 || got.Models[0].Model != "V830" {
		t.Errorf("models = %+v", got.Models)
	}
	if len(got.Fields) != 1 || got.Fields[0].Pattern != `\d+\.\d*CM` {
		t.Errorf("fields = %+v", got.Fields)
	}
	if got.Policy != "last_wins" {
		t.Errorf("policy = %q", got.Policy)
	}
}

func TestHandleToolsCall_TagVocabulary(t *testing.T) {
	s := newTestServer("C1", 91)

	var got tagVocabularyResult
	resp := callTool(t, s, "tag_vocabulary", nil, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if got.Count != vocab.Default().Len() || len(got.Tags) != got.Count {
		t.Errorf("count = %d, tags = %d", got.Count, len(got.Tags))
	}
	if len(got.Sentinels) != 3 {
		t.Errorf("sentinels = %v", got.Sentinels)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer("C1", 91)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`{invalid`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want -32602", resp.Error)
	}
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := newTestServer("C1", 91)

	_, err := s.executeTool(context.Background(), "image_load", json.RawMessage(`{}`))
	if err == nil {
		t.Error("executeTool should fail for unknown tool")
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := newTestServer("C1", 91)

	_, err := s.executeTool(context.Background(), "tag_extract", json.RawMessage(`{invalid`))
	if err == nil {
		t.Error("executeTool should fail for invalid JSON")
	}
}

func TestHandleToolsCall_TagSuggestBox(t *testing.T) {
	s := newTestServer("C1", 91)
	path := createTestFrameFile(t, 400, 300)

	var got tagSuggestBoxResult
	resp := callTool(t, s, "tag_suggest_box", map[string]interface{}{"path": path, "min_score": 0, "limit": 2}, &got)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if got.Count > 2 || len(got.Regions) != got.Count {
		t.Errorf("count = %d, regions = %d", got.Count, len(got.Regions))
	}
	for _, r := range got.Regions {
		if !r.Box.Rect().In(image.Rect(0, 0, 400, 300)) {
			t.Errorf("region %s outside the frame", r.Box)
		}
	}
}
