package source

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// PDFMIME is the only input type the cropper accepts.
const PDFMIME = "application/pdf"

// UnsupportedFileError reports an input that is not a PDF.
type UnsupportedFileError struct {
	Path string
	MIME string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("unsupported file type %s for %s: expected %s", e.MIME, e.Path, PDFMIME)
}

// VerifyPDF detects the type from magic bytes, not the file name.
func VerifyPDF(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}
	log.Debug().Str("mime", mtype.String()).Str("ext", mtype.Extension()).Str("file", path).Msg("detected file type")
	if !mtype.Is(PDFMIME) {
		return &UnsupportedFileError{Path: path, MIME: mtype.String()}
	}
	return nil
}
