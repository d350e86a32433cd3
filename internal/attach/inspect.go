package attach

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info describes a validated PDF.
type Info struct {
	Pages int
}

// Inspect validates blob as a PDF and reports its page count.
func Inspect(blob []byte) (Info, error) {
	if len(blob) == 0 {
		return Info{}, fmt.Errorf("empty attachment")
	}
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(blob), conf)
	if err != nil {
		return Info{}, fmt.Errorf("pdfcpu read: %w", err)
	}
	return Info{Pages: ctx.PageCount}, nil
}
