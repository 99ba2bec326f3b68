package elster

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// The authority requires ISO-8859-15 encoded payloads.
const xmlHeader = `<?xml version="1.0" encoding="ISO-8859-15" standalone="no"?>` + "\n"

// Datenlieferant identifies the party transmitting the declaration.
type Datenlieferant struct {
	Name    string `xml:"Name"`
	Strasse string `xml:"Strasse"`
	PLZ     string `xml:"PLZ"`
	Ort     string `xml:"Ort"`
	Email   string `xml:"Email,omitempty"`
}

// Unternehmer identifies the taxpayer.
type Unternehmer struct {
	Bezeichnung string `xml:"Bezeichnung,omitempty"`
	Name        string `xml:"Name"`
	Strasse     string `xml:"Str"`
	PLZ         string `xml:"PLZ"`
	Ort         string `xml:"Ort"`
	Email       string `xml:"Email,omitempty"`
}

// Kennzahl is one declaration figure. Tax bases are reported in full
// euros, tax amounts with cents.
type Kennzahl struct {
	Amount decimal.Decimal
	Euros  bool
}

func (k Kennzahl) amountString() string {
	if k.Euros {
		return k.Amount.Truncate(0).String()
	}
	return k.Amount.StringFixed(2)
}

// Kennzahlen maps Kz numbers to their figures. Marshalling emits the
// entries as <KzNN> elements in ascending numeric order so payloads are
// deterministic.
type Kennzahlen map[int]Kennzahl

// MarshalXML implements xml.Marshaler.
func (k Kennzahlen) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	keys := make([]int, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	for _, key := range keys {
		se := xml.StartElement{Name: xml.Name{Local: fmt.Sprintf("Kz%02d", key)}}
		if err := e.EncodeToken(se); err != nil {
			return err
		}
		if err := e.EncodeToken(xml.CharData(k[key].amountString())); err != nil {
			return err
		}
		if err := e.EncodeToken(se.End()); err != nil {
			return err
		}
	}
	return nil
}

// UStVA is the advance return body of the envelope.
type UStVA struct {
	Jahr         int    `xml:"Jahr"`
	Zeitraum     string `xml:"Zeitraum"`
	Steuernummer string `xml:"Steuernummer"`
	Kennzahlen   Kennzahlen
}

// Anmeldung is the Anmeldungssteuern envelope wrapping one declaration.
type Anmeldung struct {
	XMLName        xml.Name
	Version        string         `xml:"version,attr"`
	Date           string         `xml:"Erstellungsdatum"`
	Datenlieferant Datenlieferant `xml:"DatenLieferant"`
	Unternehmer    Unternehmer    `xml:"Steuerfall>Unternehmer"`
	UStVA          *UStVA         `xml:"Steuerfall>Umsatzsteuervoranmeldung,omitempty"`
	ZM             *ZMMeldung     `xml:"Steuerfall>ZusammenfassendeMeldung,omitempty"`
	EUR            *EURMeldung    `xml:"Steuerfall>Gewinnermittlung,omitempty"`
}

// ZMLine is one EC sales list row: the buyer's VAT id and the summed
// tax-free intra-EU turnover, in full euros.
type ZMLine struct {
	UStIDNr string     `xml:"UStIdNr"`
	Betrag  euroAmount `xml:"Betrag"`
}

// ZMMeldung is the EC sales list body.
type ZMMeldung struct {
	Jahr         int      `xml:"Jahr"`
	Zeitraum     string   `xml:"Zeitraum"`
	Steuernummer string   `xml:"Steuernummer"`
	Lines        []ZMLine `xml:"Umsatz"`
}

// EURLine is one named figure of the profit statement body.
type EURLine struct {
	Bezeichnung string     `xml:"Bezeichnung"`
	Betrag      centAmount `xml:"Betrag"`
}

// EURMeldung is the profit statement body.
type EURMeldung struct {
	Jahr         int        `xml:"Jahr"`
	Steuernummer string     `xml:"Steuernummer"`
	Einnahmen    []EURLine  `xml:"Einnahmen>Posten"`
	Ausgaben     []EURLine  `xml:"Ausgaben>Posten"`
	Gewinn       centAmount `xml:"Gewinn"`
}

type euroAmount decimal.Decimal

func (a euroAmount) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(decimal.Decimal(a).Truncate(0).String(), start)
}

type centAmount decimal.Decimal

func (a centAmount) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(decimal.Decimal(a).StringFixed(2), start)
}

func newAnmeldung(year int) Anmeldung {
	version := fmt.Sprintf("%d", year)
	return Anmeldung{
		XMLName: xml.Name{
			Space: "http://finkonsens.de/elster/elsteranmeldung/ustva/v" + version,
			Local: "Anmeldungssteuern",
		},
		Version: version,
		Date:    time.Now().Format("20060102"),
	}
}

// encodeEnvelope renders the envelope as ISO-8859-15 XML.
func encodeEnvelope(a Anmeldung) (string, error) {
	var buf bytes.Buffer
	w := charmap.ISO8859_15.NewEncoder().Writer(&buf)

	if _, err := w.Write([]byte(xmlHeader)); err != nil {
		return "", fmt.Errorf("writing envelope header: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(a); err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
