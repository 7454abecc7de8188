package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironsheep/us-probe-tag/internal/dicomsrc"
	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/tagger"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "tag_extract").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "tag_extract":
		return s.handleTagExtract(ctx, args)
	case "tag_extract_fields":
		return s.handleTagExtractFields(ctx, args)
	case "tag_preprocess":
		return s.handleTagPreprocess(args)
	case "tag_box_overlay":
		return s.handleTagBoxOverlay(args)
	case "tag_suggest_box":
		return s.handleTagSuggestBox(args)
	case "tag_models":
		return s.handleTagModels()
	case "tag_vocabulary":
		return s.handleTagVocabulary()
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs treats absent arguments as an empty object.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

// instanceArgs is the common part of every per-file tool.
type instanceArgs struct {
	Path  string `json:"path"`
	Model string `json:"model"`
}

// loadInstance reads the file named by a and applies the model override.
// The cached instance is copied, never modified.
func (s *Server) loadInstance(a instanceArgs) (*dicomsrc.Instance, error) {
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	cached, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	in := *cached
	if a.Model != "" {
		in.Model = a.Model
	}
	return &in, nil
}

// loadFramedInstance is loadInstance for tools that need pixels.
func (s *Server) loadFramedInstance(a instanceArgs) (*dicomsrc.Instance, error) {
	in, err := s.loadInstance(a)
	if err != nil {
		return nil, err
	}
	if !in.HasFrame {
		return nil, fmt.Errorf("%s (%s) has no frame to read", in.Path, in.Type)
	}
	return in, nil
}

// boxFor returns the explicit box if given, else the model box. Explicit
// boxes come straight from the caller and are validated here.
func (s *Server) boxFor(in *dicomsrc.Instance, explicit *imaging.BoundingBox) (imaging.BoundingBox, error) {
	if explicit != nil {
		if err := explicit.Validate(); err != nil {
			return imaging.BoundingBox{}, err
		}
		return *explicit, nil
	}
	box, ok := s.service.Box(in.Model)
	if !ok {
		return imaging.BoundingBox{}, fmt.Errorf("no tag box for model %q; pass model or box", in.Model)
	}
	return box, nil
}

// === Tag resolution ===

type tagExtractResult struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Model string `json:"model"`
	tagger.Result
}

// handleTagExtract resolves the probe tag of one file.
//
// Parameters (from JSON args):
//   - path: DICOM file or exported frame image.
//   - model: Optional capture device model, overriding the file's own.
//
// Returns the tagger.Result with the file's type and model. Ineligible
// instances and models without a box come back as "Unknown", not as errors.
func (s *Server) handleTagExtract(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a instanceArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	in, err := s.loadInstance(a)
	if err != nil {
		return nil, err
	}

	res, err := s.service.TagFrame(ctx, in.FrameInfo())
	if err != nil {
		return nil, err
	}
	return &tagExtractResult{Path: in.Path, Type: in.Type, Model: in.Model, Result: res}, nil
}

type tagExtractFieldsArgs struct {
	instanceArgs
	Tag string `json:"tag"`
}

type tagExtractFieldsResult struct {
	Path   string                        `json:"path"`
	Tag    string                        `json:"tag"`
	Fields map[string]tagger.FieldResult `json:"fields"`
}

// handleTagExtractFields reads the depth, gain and other pattern fields of
// one file. When no tag is given the tag is resolved first, since some fields
// only apply to some probes.
func (s *Server) handleTagExtractFields(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a tagExtractFieldsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	in, err := s.loadFramedInstance(a.instanceArgs)
	if err != nil {
		return nil, err
	}

	tag := a.Tag
	if tag == "" {
		res, err := s.service.TagFrame(ctx, in.FrameInfo())
		if err != nil {
			return nil, err
		}
		tag = res.Tag
	}

	fields, err := s.service.ExtractFields(ctx, in.Frame, tag)
	if err != nil {
		return nil, err
	}
	return &tagExtractFieldsResult{Path: in.Path, Tag: tag, Fields: fields}, nil
}

// === Inspection ===

type tagPreprocessArgs struct {
	instanceArgs
	Box     *imaging.BoundingBox `json:"box"`
	Index   *int                 `json:"index"`
	Rescale bool                 `json:"rescale"`
	Invert  bool                 `json:"invert"`
}

type candidateImage struct {
	Index  int                   `json:"index"`
	Config imaging.ProcessConfig `json:"config"`
	*imaging.ImageResult
}

type tagPreprocessResult struct {
	Path       string              `json:"path"`
	Box        imaging.BoundingBox `json:"box"`
	Candidates []candidateImage    `json:"candidates"`
}

// handleTagPreprocess renders the candidate images the resolver would OCR.
//
// Parameters (from JSON args):
//   - path, model: As for tag_extract.
//   - box: Optional explicit box, replacing the model box.
//   - index: Single candidate 0-11, or -1 for all twelve.
//   - rescale: Stretch intensities first, as field extraction does.
//   - invert: Return dark text on light for viewing.
//
// # Errors
//
//   - Returns error if index is 12 or more
//   - Returns error if the explicit box is inverted or has a negative corner
//   - Returns error if no box is given and the model has none
func (s *Server) handleTagPreprocess(args json.RawMessage) (interface{}, error) {
	var a tagPreprocessArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Index == nil {
		all := -1
		a.Index = &all
	}
	if *a.Index >= len(imaging.ProcessConfigs()) {
		return nil, fmt.Errorf("index %d out of range 0-%d", *a.Index, len(imaging.ProcessConfigs())-1)
	}

	in, err := s.loadFramedInstance(a.instanceArgs)
	if err != nil {
		return nil, err
	}
	box, err := s.boxFor(in, a.Box)
	if err != nil {
		return nil, err
	}

	var opts []imaging.LadderOption
	if a.Rescale {
		opts = append(opts, imaging.WithRescale())
	}
	ladder, err := imaging.NewLadder(in.Frame, box, opts...)
	if err != nil {
		return nil, err
	}

	result := &tagPreprocessResult{Path: in.Path, Box: box}
	for {
		c, ok := ladder.Next()
		if !ok {
			break
		}
		if *a.Index >= 0 && c.Index != *a.Index {
			continue
		}
		img := c.Image
		if a.Invert {
			img = imaging.Invert(img)
		}
		encoded, err := imaging.EncodePNG(img)
		if err != nil {
			return nil, err
		}
		result.Candidates = append(result.Candidates, candidateImage{Index: c.Index, Config: c.Config, ImageResult: encoded})
	}
	return result, nil
}

type tagBoxOverlayArgs struct {
	instanceArgs
	Box   *imaging.BoundingBox `json:"box"`
	Color string               `json:"color"`
}

func (s *Server) handleTagBoxOverlay(args json.RawMessage) (interface{}, error) {
	var a tagBoxOverlayArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Color == "" {
		a.Color = "#FF0000"
	}

	in, err := s.loadFramedInstance(a.instanceArgs)
	if err != nil {
		return nil, err
	}
	box, err := s.boxFor(in, a.Box)
	if err != nil {
		return nil, err
	}
	gray, err := in.Frame.Gray()
	if err != nil {
		return nil, err
	}
	return imaging.BoxOverlay(gray, box, a.Color)
}

type tagSuggestBoxArgs struct {
	Path     string   `json:"path"`
	MinScore *float64 `json:"min_score"`
	Limit    int      `json:"limit"`
}

type tagSuggestBoxResult struct {
	Path    string               `json:"path"`
	Model   string               `json:"model"`
	Regions []imaging.TextRegion `json:"regions"`
	Count   int                  `json:"count"`
}

// handleTagSuggestBox proposes tag boxes for a frame whose model has none.
func (s *Server) handleTagSuggestBox(args json.RawMessage) (interface{}, error) {
	var a tagSuggestBoxArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	minScore := 0.3
	if a.MinScore != nil {
		minScore = *a.MinScore
	}
	if a.Limit <= 0 {
		a.Limit = 5
	}

	in, err := s.loadFramedInstance(instanceArgs{Path: a.Path})
	if err != nil {
		return nil, err
	}
	gray, err := in.Frame.Gray()
	if err != nil {
		return nil, err
	}

	regions := imaging.FindTextRegions(gray, minScore)
	if len(regions) > a.Limit {
		regions = regions[:a.Limit]
	}
	return &tagSuggestBoxResult{Path: in.Path, Model: in.Model, Regions: regions, Count: len(regions)}, nil
}

// === Configuration ===

type modelInfo struct {
	Model string              `json:"model"`
	Box   imaging.BoundingBox `json:"box"`
}

type fieldInfo struct {
	Name        string              `json:"name"`
	Box         imaging.BoundingBox `json:"box"`
	Pattern     string              `json:"pattern"`
	OnlyForTags []string            `json:"only_for_tags,omitempty"`
}

type tagModelsResult struct {
	Models []modelInfo `json:"models"`
	Fields []fieldInfo `json:"fields"`
	Policy string      `json:"policy"`
}

func (s *Server) handleTagModels() (interface{}, error) {
	result := &tagModelsResult{Policy: s.service.Resolver().Policy().String()}
	for _, m := range s.service.Models() {
		box, _ := s.service.Box(m)
		result.Models = append(result.Models, modelInfo{Model: m, Box: box})
	}
	for _, f := range s.service.Fields() {
		result.Fields = append(result.Fields, fieldInfo{
			Name:        f.Name,
			Box:         f.Box,
			Pattern:     f.Pattern.String(),
			OnlyForTags: f.OnlyForTags,
		})
	}
	return result, nil
}

type tagVocabularyResult struct {
	Tags      []string `json:"tags"`
	Count     int      `json:"count"`
	Sentinels []string `json:"sentinels"`
}

func (s *Server) handleTagVocabulary() (interface{}, error) {
	v := s.service.Vocabulary()
	return &tagVocabularyResult{
		Tags:      v.Tags(),
		Count:     v.Len(),
		Sentinels: []string{vocab.Unknown, vocab.Undecided, vocab.NoTag},
	}, nil
}
