package entsoe

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// APIError is a failed request: either a non-200 HTTP status or an
// acknowledgement document explaining why no data was returned.
type APIError struct {
	StatusCode int
	Status     string
	Code       string // acknowledgement reason code, e.g. 999
	Text       string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		if e.Text != "" {
			return fmt.Sprintf("HTTP request failed with status %d: %s: %s", e.StatusCode, e.Status, e.Text)
		}
		return fmt.Sprintf("HTTP request failed with status %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("request acknowledged without data (reason %s): %s", e.Code, e.Text)
}

type acknowledgement struct {
	XMLName xml.Name `xml:"Acknowledgement_MarketDocument"`
	Reason  []struct {
		Code string `xml:"code"`
		Text string `xml:"text"`
	} `xml:"Reason"`
}

// decodeAcknowledgement recognises an Acknowledgement_MarketDocument.
func decodeAcknowledgement(data []byte) (*APIError, bool) {
	if !bytes.Contains(data, []byte("Acknowledgement_MarketDocument")) {
		return nil, false
	}
	var ack acknowledgement
	if err := xml.Unmarshal(data, &ack); err != nil {
		return nil, false
	}
	e := &APIError{}
	for _, r := range ack.Reason {
		if e.Code == "" {
			e.Code = r.Code
		}
		if r.Text != "" {
			if e.Text != "" {
				e.Text += "; "
			}
			e.Text += r.Text
		}
	}
	return e, true
}
