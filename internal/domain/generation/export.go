package generation

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// WriteJSON writes the whole result as one indented JSON document.
func WriteJSON(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteNDJSON writes one exported document per line, skipping failed slots.
func WriteNDJSON(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	for _, pr := range res.Patients {
		for _, dr := range pr.Documents {
			if dr.Document == nil {
				continue
			}
			if err := enc.Encode(dr.Document); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteCSV writes one row per document: run and validation columns first,
// then the union of field paths across all documents, sorted, so rows from
// different templates line up.
func WriteCSV(w io.Writer, res *Result) error {
	fieldSet := make(map[string]bool)
	for _, pr := range res.Patients {
		for _, dr := range pr.Documents {
			if dr.Document == nil {
				continue
			}
			for path := range dr.Document.Fields {
				fieldSet[path] = true
			}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	cw := csv.NewWriter(w)
	header := append([]string{
		"run_id", "patient_id", "template_path", "slot", "outcome", "score", "medical_score",
	}, fields...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, pr := range res.Patients {
		for _, dr := range pr.Documents {
			if dr.Document == nil {
				continue
			}
			outcome, score, medScore := "", "", ""
			if rep := dr.Document.Validation; rep != nil {
				outcome = string(rep.Outcome)
				score = strconv.Itoa(rep.Score)
				medScore = strconv.Itoa(rep.MedicalScore)
			}
			row := []string{
				res.RunID.String(),
				dr.Document.PatientID,
				dr.TemplatePath,
				strconv.Itoa(dr.Slot),
				outcome,
				score,
				medScore,
			}
			for _, f := range fields {
				row = append(row, csvCell(dr.Document.Fields[f]))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStoredNDJSON streams persisted document bodies one per line.
func WriteStoredNDJSON(w io.Writer, docs []*StoredDocument) error {
	for _, d := range docs {
		if len(d.Body) == 0 {
			continue
		}
		if _, err := w.Write(d.Body); err != nil {
			return err
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}

// WriteStoredCSV rebuilds the CSV projection from persisted document bodies.
func WriteStoredCSV(w io.Writer, docs []*StoredDocument) error {
	type row struct {
		doc  *StoredDocument
		body struct {
			Fields map[string]interface{} `json:"fields"`
		}
	}

	rows := make([]row, 0, len(docs))
	fieldSet := make(map[string]bool)
	for _, d := range docs {
		r := row{doc: d}
		if err := json.Unmarshal(d.Body, &r.body); err != nil {
			return fmt.Errorf("decode stored document %s: %w", d.ID, err)
		}
		for path := range r.body.Fields {
			fieldSet[path] = true
		}
		rows = append(rows, r)
	}
	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	cw := csv.NewWriter(w)
	header := append([]string{
		"run_id", "patient_id", "template_path", "outcome", "score", "medical_score",
	}, fields...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		out := []string{
			r.doc.RunID.String(),
			r.doc.PatientID,
			r.doc.TemplatePath,
			r.doc.Outcome,
			strconv.Itoa(r.doc.Score),
			strconv.Itoa(r.doc.MedicalScore),
		}
		for _, f := range fields {
			out = append(out, csvCell(r.body.Fields[f]))
		}
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprintf("%v", v)
}
