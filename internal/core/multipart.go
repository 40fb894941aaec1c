package core

// multipart.go pulls the CSV payload out of a raw multipart/form-data body.
//
// Only one file is expected per upload. The first part that carries a file
// name wins; without one, a part named "file" is used, and failing that the
// first part. Later parts are ignored.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// UploadFormField is the form field name browsers use for the CSV file.
const UploadFormField = "file"

// BoundaryFromContentType returns the multipart boundary declared in a
// Content-Type header, or "" when there is none.
func BoundaryFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return ""
	}
	return params["boundary"]
}

// ExtractCSV returns the payload of the file part in body. When boundary is
// empty it is taken from the first delimiter line of the body.
func ExtractCSV(body []byte, boundary string) (string, error) {
	payload, _, err := ExtractFile(body, boundary)
	return payload, err
}

// ExtractFile is ExtractCSV that also reports the part's file name.
func ExtractFile(body []byte, boundary string) (payload string, fileName string, err error) {
	if boundary == "" {
		boundary = sniffBoundary(body)
	}
	if boundary == "" {
		return "", "", fmt.Errorf("%w: no multipart boundary found", ErrMalformedUpload)
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)

	var (
		best     []byte
		bestName string
		bestRank = -1
	)

	for {
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrMalformedUpload, err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return "", "", fmt.Errorf("%w: read part: %v", ErrMalformedUpload, err)
		}

		rank := partRank(part)
		if rank > bestRank {
			best, bestName, bestRank = data, part.FileName(), rank
		}
		if rank == rankFile {
			break
		}
	}

	if bestRank < 0 {
		return "", "", fmt.Errorf("%w: body has no parts", ErrMalformedUpload)
	}
	if !bytes.Contains(best, []byte{','}) {
		return "", "", fmt.Errorf("%w: no comma in %q", ErrNotCSV, bestName)
	}

	return strings.TrimSpace(string(best)), bestName, nil
}

const (
	rankAny = iota
	rankFormField
	rankFile
)

func partRank(p *multipart.Part) int {
	switch {
	case p.FileName() != "":
		return rankFile
	case p.FormName() == UploadFormField:
		return rankFormField
	default:
		return rankAny
	}
}

// sniffBoundary reads the boundary from the first "--boundary" line.
func sniffBoundary(body []byte) string {
	for len(body) > 0 {
		line := body
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			line, body = body[:i], body[i+1:]
		} else {
			body = nil
		}
		line = bytes.TrimRight(line, "\r \t")
		if len(line) == 0 {
			continue
		}
		if !bytes.HasPrefix(line, []byte("--")) || len(line) == 2 {
			return ""
		}
		return string(line[2:])
	}
	return ""
}
