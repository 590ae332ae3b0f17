package processor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/plumed-nebula/yana/container"
	"github.com/plumed-nebula/yana/internal/encoder"
	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/task"
)

// Worker compresses a single item end to end: read, classify, encode, write.
type Worker struct{}

// Work never lets an item failure escape. Panics and errors alike collapse
// into a fallback result pointing at the original source path.
func (w Worker) Work(gCtx global.Context, tmpDir string, item task.Item, settings task.Settings) (result task.ItemResult) {
	result = task.ItemResult{Index: item.Index}

	defer func() {
		if pnk := recover(); pnk != nil {
			zap.S().Errorw("worker panicked",
				"index", item.Index,
				"path", item.Path,
				"panic", pnk,
			)

			result.Fallback = true
			result.OutputPath = item.Path
			result.Message = fmt.Sprintf("panic: %v", pnk)
		}
	}()

	out, err := w.process(gCtx, tmpDir, item, settings)
	if err != nil {
		zap.S().Errorw("item failed",
			"index", item.Index,
			"path", item.Path,
			"error", err,
		)

		result.Fallback = true
		result.OutputPath = item.Path
		result.Message = err.Error()

		return result
	}

	result.OutputPath = out.path
	result.SHA3 = out.digest
	result.ContentType = out.contentType
	result.Size = out.size

	return result
}

type artifact struct {
	path        string
	digest      string
	contentType string
	size        int
}

func (w Worker) process(gCtx global.Context, tmpDir string, item task.Item, settings task.Settings) (artifact, error) {
	data := item.Data
	if data == nil {
		var err error
		data, err = os.ReadFile(item.Path)
		if err != nil {
			return artifact{}, multierr.Append(fmt.Errorf("failed at read input"), err)
		}
	}

	kind, err := container.Classify(data)
	if err != nil {
		return artifact{}, err
	}

	gCtx.Inst().Prometheus.InputFileType(kind.String())

	encoded, outType, err := w.encode(gCtx, data, kind, settings)
	if err != nil {
		return artifact{}, err
	}

	out, err := newArtifact(tmpDir, "yana_", "."+outType.Extension)
	if err != nil {
		return artifact{}, err
	}

	if err := os.WriteFile(out, encoded, 0600); err != nil {
		return artifact{}, multierr.Append(fmt.Errorf("failed at write artifact"), err)
	}

	h := sha3.New512()
	_, _ = h.Write(encoded)

	return artifact{
		path:        out,
		digest:      fmt.Sprintf("%x", h.Sum(nil)),
		contentType: outType.MIME.Value,
		size:        len(encoded),
	}, nil
}

func (w Worker) encode(gCtx global.Context, data []byte, kind container.Kind, settings task.Settings) ([]byte, types.Type, error) {
	done := gCtx.Inst().Prometheus.EncodeImage()
	defer done()

	if kind.Animated {
		out, err := encoder.Transcode(data, kind, settings.Mode, settings.Quality)
		if err != nil {
			return nil, types.Unknown, err
		}

		if settings.Mode == task.ModeTargetWebP && kind.Type == matchers.TypeGif {
			return out, matchers.TypeWebp, nil
		}

		return out, kind.Type, nil
	}

	img, err := encoder.Decode(data)
	if err != nil {
		return nil, types.Unknown, err
	}

	switch settings.Mode {
	case task.ModeTargetWebP:
		out, err := encoder.EncodeWebP(img, settings.Quality)

		return out, matchers.TypeWebp, err
	default:
		out, err := encoder.Encode(img, kind.Type, settings.Quality, encoder.PngOptions{
			Mode:         settings.PngMode,
			Optimization: settings.PngOptimization,
		})

		return out, kind.Type, err
	}
}

func newArtifact(dir, prefix, suffix string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", multierr.Append(fmt.Errorf("failed at uuid"), err)
	}

	return filepath.Join(dir, prefix+id.String()+suffix), nil
}
