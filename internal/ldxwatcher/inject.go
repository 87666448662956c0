package ldxwatcher

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// fieldSnapshot is the current stored value for one injectable field,
// gathered across all form schemas before a file is processed.
type fieldSnapshot struct {
	fieldID   string
	value     string
	updatedAt *time.Time
	window    *time.Duration
}

// injectionResult is one entry written into the <detail> block.
type injectionResult struct {
	fieldID   string
	value     string
	wasUpdate bool
}

// inject appends one <entry id="..."> element per snapshot into doc's
// <detail> element (creating it under the document root if absent),
// preserving every other byte of the input it can. now drives the
// was_update classification for fields with a validity window, and
// lastProcessedAt for fields without one.
func inject(doc []byte, snapshots []fieldSnapshot, now time.Time, lastProcessedAt time.Time) ([]byte, []injectionResult, error) {
	insertPos, createDetail, err := findInsertionPoint(doc)
	if err != nil {
		return nil, nil, err
	}

	var body bytes.Buffer
	var results []injectionResult
	if createDetail {
		body.WriteString("<detail>")
	}
	for _, snap := range snapshots {
		wasUpdate := classify(snap, now, lastProcessedAt)
		body.WriteString(`<entry id="`)
		xml.EscapeText(&body, []byte(snap.fieldID))
		body.WriteString(`">`)
		xml.EscapeText(&body, []byte(snap.value))
		body.WriteString(`</entry>`)
		results = append(results, injectionResult{fieldID: snap.fieldID, value: snap.value, wasUpdate: wasUpdate})
	}
	if createDetail {
		body.WriteString("</detail>")
	}

	out := make([]byte, 0, len(doc)+body.Len())
	out = append(out, doc[:insertPos]...)
	out = append(out, body.Bytes()...)
	out = append(out, doc[insertPos:]...)
	return out, results, nil
}

// classify applies spec's was_update rule: within the field's validity
// window if one is configured; otherwise, whether the value was touched
// after lastProcessedAt, the first_seen_at of the most recent other file
// the watcher processed.
func classify(snap fieldSnapshot, now time.Time, lastProcessedAt time.Time) bool {
	if snap.updatedAt == nil {
		return false
	}
	if snap.window != nil {
		return now.Sub(*snap.updatedAt) <= *snap.window
	}
	return snap.updatedAt.After(lastProcessedAt)
}

// findInsertionPoint scans doc for the first <detail> element and returns
// the byte offset immediately before its closing tag. If no <detail>
// element exists, it returns the offset immediately before the document
// root's closing tag, with createDetail=true so the caller wraps the
// injected entries in a new <detail>...</detail> block.
func findInsertionPoint(doc []byte) (pos int64, createDetail bool, err error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	var depth int
	detailClose := int64(-1)
	rootClose := int64(-1)

	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("parse xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			if el.Name.Local == "detail" && detailClose == -1 {
				detailClose = offset
			}
			if depth == 0 && rootClose == -1 {
				rootClose = offset
			}
		}
	}

	if detailClose != -1 {
		return detailClose, false, nil
	}
	if rootClose == -1 {
		return 0, false, fmt.Errorf("document has no root element")
	}
	return rootClose, true, nil
}
