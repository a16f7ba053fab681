package pdfbox

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/local/cropmargins/internal/geometry"
)

// PageCrop is one entry of a crop data file.
type PageCrop struct {
	Page     int          `json:"page"`
	Full     geometry.Box `json:"full"`
	Crop     geometry.Box `json:"crop"`
	Selected bool         `json:"selected"`
}

// CropData builds the per-page records for a finished computation. Page
// numbers are 1-based.
func CropData(full, crop geometry.PageBoxList, sel geometry.Selection) []PageCrop {
	out := make([]PageCrop, len(crop))
	for i := range crop {
		out[i] = PageCrop{Page: i + 1, Crop: crop[i], Selected: sel.Contains(i)}
		if i < len(full) {
			out[i].Full = full[i]
		}
	}
	return out
}

// WriteCropData dumps the records as indented JSON.
func WriteCropData(path string, data []PageCrop) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal crop data: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write crop data: %w", err)
	}
	return nil
}

// ReadCropData loads a file written by WriteCropData.
func ReadCropData(path string) ([]PageCrop, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data []PageCrop
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("decode crop data: %w", err)
	}
	return data, nil
}
