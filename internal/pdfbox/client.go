package pdfbox

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/pageconfig"
)

// Client reads and writes page boundaries with pdfcpu.
type Client struct{}

// New creates a new pdfcpu backed client
func New() *Client {
	return &Client{}
}

func configuration(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}
	return conf
}

// ReadBoundaries returns the boundary boxes of every page, in page order.
func (c *Client) ReadBoundaries(path, password string) ([]PageBoundaries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, err := api.ReadContext(f, configuration(password))
	if err != nil {
		return nil, fmt.Errorf("pdf read failed: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("pdf page count failed: %w", err)
	}

	sel := make(types.IntSet, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		sel[i] = true
	}
	pbs, err := ctx.PageBoundaries(sel)
	if err != nil {
		return nil, fmt.Errorf("pdf page boundaries failed: %w", err)
	}

	out := make([]PageBoundaries, len(pbs))
	for i, pb := range pbs {
		out[i] = fromModel(pb)
	}
	log.Debug().Str("file", path).Int("pages", len(out)).Msg("read page boundaries")
	return out, nil
}

// Decrypt writes an unencrypted copy of in to out.
func (c *Client) Decrypt(in, out, password string) error {
	if err := api.DecryptFile(in, out, configuration(password)); err != nil {
		return fmt.Errorf("pdf decrypt failed: %w", err)
	}
	return nil
}

// WriteBoxes copies in to out and sets, on every selected page, each box type
// in targets to that page's box. Pages sharing a box are written together.
func (c *Client) WriteBoxes(in, out string, boxes geometry.PageBoxList, sel geometry.Selection, targets []BoxType, password string) error {
	if len(targets) == 0 {
		targets = []BoxType{MediaBox}
	}
	if err := sel.Validate(len(boxes)); err != nil {
		return err
	}
	if in != out {
		if err := copyFile(in, out); err != nil {
			return fmt.Errorf("copy %s: %w", in, err)
		}
	}

	conf := configuration(password)
	for _, g := range groupPages(boxes, sel) {
		if len(targets) == 1 && targets[0] == CropBox {
			box, err := model.ParseBox(g.box, types.POINTS)
			if err != nil {
				return fmt.Errorf("failed to parse crop box: %w", err)
			}
			if err := api.CropFile(out, "", g.pages, box, conf); err != nil {
				return fmt.Errorf("failed to crop PDF: %w", err)
			}
			continue
		}

		pb, err := model.ParsePageBoundaries(boundariesDescription(g.box, targets), types.POINTS)
		if err != nil {
			return fmt.Errorf("failed to parse page boundaries: %w", err)
		}
		if err := api.AddBoxesFile(out, "", g.pages, pb, conf); err != nil {
			return fmt.Errorf("failed to set page boxes: %w", err)
		}
	}
	return nil
}

type pageGroup struct {
	box   string
	pages []string
}

// groupPages collects the selected pages by formatted box, in first-seen
// order. Page numbers are 1-based as pdfcpu expects.
func groupPages(boxes geometry.PageBoxList, sel geometry.Selection) []pageGroup {
	var groups []pageGroup
	index := make(map[string]int)
	for _, p := range sel.Sorted() {
		key := boxes[p].Format(pageconfig.DecimalPrecision)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, pageGroup{box: key})
		}
		groups[i].pages = append(groups[i].pages, strconv.Itoa(p+1))
	}
	return groups
}

// boundariesDescription builds the pdfcpu box description, e.g.
// "media:[0 0 612 792], crop:[0 0 612 792]".
func boundariesDescription(box string, targets []BoxType) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = t.Name() + ":" + box
	}
	return strings.Join(parts, ", ")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
