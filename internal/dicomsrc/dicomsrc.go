// Package dicomsrc turns ultrasound DICOM instances (or exported frame
// images) into the 2-D frames and metadata the tagger consumes.
//
// Instance types follow the SOP class of the file:
//
//	1.2.840.10008.5.1.4.1.1.3.1   cine (middle frame is used)
//	1.2.840.10008.5.1.4.1.1.6.1   2d image, or ge kretz image when (7FE1,0011) is present
//	1.2.840.10008.5.1.4.1.1.7     Secondary capture image report
//	1.2.840.10008.5.1.4.1.1.88.33 Comprehensive SR
//	1.2.840.10008.5.1.4.1.1.6.2   3D Dicom Volume
//
// Anything else is Unknown. Pixel data is only decoded for cine and 2d image
// instances.
package dicomsrc

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ironsheep/us-probe-tag/internal/imaging"
	"github.com/ironsheep/us-probe-tag/internal/tagger"
	"github.com/ironsheep/us-probe-tag/internal/vocab"
)

// Instance types.
const (
	TypeCine            = "cine"
	TypeImage2D         = "2d image"
	TypeKretz           = "ge kretz image"
	TypeSecondaryReport = "Secondary capture image report"
	TypeStructured      = "Comprehensive SR"
	TypeVolume          = "3D Dicom Volume"
	TypeUnknown         = vocab.Unknown
)

const (
	sopUltrasoundMultiframe = "1.2.840.10008.5.1.4.1.1.3.1"
	sopUltrasoundImage      = "1.2.840.10008.5.1.4.1.1.6.1"
	sopSecondaryCapture     = "1.2.840.10008.5.1.4.1.1.7"
	sopComprehensiveSR      = "1.2.840.10008.5.1.4.1.1.88.33"
	sopUltrasoundVolume     = "1.2.840.10008.5.1.4.1.1.6.2"
)

// kretzTag marks GE Kretz volumes stored under the ultrasound image class.
var kretzTag = tag.Tag{Group: 0x7FE1, Element: 0x0011}

var (
	// ErrNoPixelData is returned when a taggable instance carries no frames.
	ErrNoPixelData = errors.New("no pixel data")
	// ErrUnsupportedPhotometric is returned for colour encodings that cannot
	// be reduced to a single channel.
	ErrUnsupportedPhotometric = errors.New("unsupported photometric interpretation")
)

// Instance is one decoded file.
type Instance struct {
	Path        string `json:"path"`
	SOPClass    string `json:"sop_class,omitempty"`
	Type        string `json:"type"`
	Model       string `json:"model"`
	Photometric string `json:"photometric,omitempty"`
	Frames      int    `json:"frames"`
	// FrameIndex is the frame that was decoded.
	FrameIndex int           `json:"frame_index"`
	Frame      imaging.Frame `json:"-"`
	HasFrame   bool          `json:"has_frame"`
}

// FrameInfo returns the tagger input for the instance.
func (in *Instance) FrameInfo() tagger.FrameInfo {
	return tagger.FrameInfo{Frame: in.Frame, Type: in.Type, Model: in.Model}
}

// Classify maps a SOP class UID to an instance type.
func Classify(sopClass string, hasKretz bool) string {
	switch sopClass {
	case sopUltrasoundMultiframe:
		return TypeCine
	case sopUltrasoundImage:
		if hasKretz {
			return TypeKretz
		}
		return TypeImage2D
	case sopSecondaryCapture:
		return TypeSecondaryReport
	case sopComprehensiveSR:
		return TypeStructured
	case sopUltrasoundVolume:
		return TypeVolume
	default:
		return TypeUnknown
	}
}

// ModelName returns the model used for box lookup. LOGIQe cines draw their
// overlay elsewhere and get their own model name.
func ModelName(typ, model string) string {
	if typ == TypeCine && model == "LOGIQe" {
		return "LOGIQeCine"
	}
	return model
}

// MiddleFrame returns the frame index used for a cine of n frames.
func MiddleFrame(n int) int {
	return n / 2
}

// Load reads a DICOM file, or a PNG/JPEG/GIF frame export treated as a
// "2d image" of unknown model.
func Load(path string) (*Instance, error) {
	if imaging.ImageFormat(path) != "" {
		frame, err := imaging.LoadFrame(path)
		if err != nil {
			return nil, err
		}
		return &Instance{Path: path, Type: TypeImage2D, Frames: 1, Frame: frame, HasFrame: true}, nil
	}

	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DICOM %s: %w", path, err)
	}

	in := &Instance{
		Path:        path,
		SOPClass:    stringValue(ds, tag.SOPClassUID),
		Photometric: stringValue(ds, tag.PhotometricInterpretation),
	}
	_, kretzErr := ds.FindElementByTag(kretzTag)
	in.Type = Classify(in.SOPClass, kretzErr == nil)
	in.Model = ModelName(in.Type, stringValue(ds, tag.ManufacturerModelName))

	if in.Type != TypeCine && in.Type != TypeImage2D {
		return in, nil
	}
	if err := in.decodeFrame(ds); err != nil {
		return in, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

func (in *Instance) decodeFrame(ds dicom.Dataset) error {
	pe, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return ErrNoPixelData
	}
	info, ok := pe.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return ErrNoPixelData
	}

	in.Frames = len(info.Frames)
	if n, err := strconv.Atoi(stringValue(ds, tag.NumberOfFrames)); err == nil && n > 0 && n <= len(info.Frames) {
		in.Frames = n
	}
	if in.Type == TypeCine {
		in.FrameIndex = MiddleFrame(in.Frames)
	}

	fr := info.Frames[in.FrameIndex]
	if fr.IsEncapsulated() {
		img, err := fr.GetImage()
		if err != nil {
			return fmt.Errorf("failed to decode frame %d: %w", in.FrameIndex, err)
		}
		in.Frame, err = imageToFrame(img, in.Type, in.Photometric)
		if err != nil {
			return err
		}
	} else {
		nd := fr.NativeData
		in.Frame, err = nativeToFrame(nd.Data, nd.Rows, nd.Cols, in.Type, in.Photometric)
		if err != nil {
			return err
		}
	}
	in.HasFrame = true
	return nil
}

// channelFor reports how a colour frame reduces to grey: a channel index, or
// -1 for luminance.
func channelFor(typ, photometric string) (int, error) {
	switch photometric {
	case "", "MONOCHROME2", "MONOCHROME1":
		return 0, nil
	case "RGB":
		if typ == TypeImage2D {
			return -1, nil
		}
		return 0, nil
	case "YBR_FULL_422", "YBR_FULL":
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedPhotometric, photometric)
	}
}

// nativeToFrame builds a frame from per-pixel samples.
func nativeToFrame(data [][]int, rows, cols int, typ, photometric string) (imaging.Frame, error) {
	if rows*cols != len(data) {
		return imaging.Frame{}, fmt.Errorf("%w: %d pixels for %dx%d", imaging.ErrShapeMismatch, len(data), rows, cols)
	}
	channel, err := channelFor(typ, photometric)
	if err != nil {
		return imaging.Frame{}, err
	}

	out := make([]float64, len(data))
	for i, px := range data {
		switch {
		case len(px) == 0:
		case channel < 0 && len(px) >= 3:
			out[i] = float64(int(0.2989*float64(px[0]) + 0.5870*float64(px[1]) + 0.1140*float64(px[2])))
		case channel < len(px) && channel >= 0:
			out[i] = float64(px[channel])
		default:
			out[i] = float64(px[0])
		}
	}
	return imaging.Frame{Shape: []int{rows, cols}, Data: out}, nil
}

func imageToFrame(img image.Image, typ, photometric string) (imaging.Frame, error) {
	channel, err := channelFor(typ, photometric)
	if err != nil {
		return imaging.Frame{}, err
	}
	if channel < 0 {
		return imaging.FrameFromImage(img), nil
	}
	// Encapsulated YBR frames decode to RGB, where red tracks luma closely
	// enough for burned-in white text.
	return imaging.FrameFromChannel(img, channel), nil
}

func stringValue(ds dicom.Dataset, t tag.Tag) string {
	e, err := ds.FindElementByTag(t)
	if err != nil || e.Value == nil {
		return ""
	}
	if s, ok := e.Value.GetValue().([]string); ok && len(s) > 0 {
		return strings.TrimSpace(strings.TrimRight(s[0], "\x00"))
	}
	return ""
}
