package einvoice

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Dialect names reported by Parse.
const (
	DialectCII = "cii"
	DialectUBL = "ubl"
)

// ParsedInvoice holds the headline fields extracted from an e-invoice
// document. The reverse parser is deliberately lossy: it identifies the
// document and its totals but does not reconstruct line items or parties
// beyond their names. Round-trip fidelity is out of scope.
type ParsedInvoice struct {
	Dialect    string          `json:"dialect"`
	Number     string          `json:"number"`
	IssueDate  string          `json:"issueDate"`
	DueDate    string          `json:"dueDate,omitempty"`
	Currency   string          `json:"currency"`
	SellerName string          `json:"sellerName"`
	BuyerName  string          `json:"buyerName"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	VATTotal   decimal.Decimal `json:"vatTotal"`
	Total      decimal.Decimal `json:"total"`
}

// Parse detects the XML dialect by its root element and extracts the
// headline fields from either a CII or a UBL document.
func Parse(data []byte) (ParsedInvoice, error) {
	root, err := rootName(data)
	if err != nil {
		return ParsedInvoice{}, err
	}

	switch root {
	case "CrossIndustryInvoice":
		return parseCII(data)
	case "Invoice":
		return parseUBL(data)
	default:
		return ParsedInvoice{}, fmt.Errorf("unrecognized e-invoice root element %q", root)
	}
}

func rootName(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("reading e-invoice XML: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

type ciiParsed struct {
	Number    string `xml:"ExchangedDocument>ID"`
	IssueDate string `xml:"ExchangedDocument>IssueDateTime>DateTimeString"`
	Seller    string `xml:"SupplyChainTradeTransaction>ApplicableHeaderTradeAgreement>SellerTradeParty>Name"`
	Buyer     string `xml:"SupplyChainTradeTransaction>ApplicableHeaderTradeAgreement>BuyerTradeParty>Name"`
	Currency  string `xml:"SupplyChainTradeTransaction>ApplicableHeaderTradeSettlement>InvoiceCurrencyCode"`
	Subtotal  string `xml:"SupplyChainTradeTransaction>ApplicableHeaderTradeSettlement>SpecifiedTradeSettlementHeaderMonetarySummation>LineTotalAmount"`
	VATTotal  string `xml:"SupplyChainTradeTransaction>ApplicableHeaderTradeSettlement>SpecifiedTradeSettlementHeaderMonetarySummation>TaxTotalAmount"`
	Total     string `xml:"SupplyChainTradeTransaction>ApplicableHeaderTradeSettlement>SpecifiedTradeSettlementHeaderMonetarySummation>GrandTotalAmount"`
}

func parseCII(data []byte) (ParsedInvoice, error) {
	var doc ciiParsed
	if err := xml.Unmarshal(data, &doc); err != nil {
		return ParsedInvoice{}, fmt.Errorf("decoding CII invoice: %w", err)
	}

	p := ParsedInvoice{
		Dialect:    DialectCII,
		Number:     doc.Number,
		IssueDate:  isoFromCIIDate(doc.IssueDate),
		Currency:   doc.Currency,
		SellerName: doc.Seller,
		BuyerName:  doc.Buyer,
	}
	p.Subtotal = parseAmount(doc.Subtotal)
	p.VATTotal = parseAmount(doc.VATTotal)
	p.Total = parseAmount(doc.Total)
	return p, nil
}

type ublParsed struct {
	Number    string `xml:"ID"`
	IssueDate string `xml:"IssueDate"`
	DueDate   string `xml:"DueDate"`
	Currency  string `xml:"DocumentCurrencyCode"`
	Seller    string `xml:"AccountingSupplierParty>Party>PartyLegalEntity>RegistrationName"`
	Buyer     string `xml:"AccountingCustomerParty>Party>PartyLegalEntity>RegistrationName"`
	Subtotal  string `xml:"LegalMonetaryTotal>LineExtensionAmount"`
	VATTotal  string `xml:"TaxTotal>TaxAmount"`
	Total     string `xml:"LegalMonetaryTotal>TaxInclusiveAmount"`
}

func parseUBL(data []byte) (ParsedInvoice, error) {
	var doc ublParsed
	if err := xml.Unmarshal(data, &doc); err != nil {
		return ParsedInvoice{}, fmt.Errorf("decoding UBL invoice: %w", err)
	}

	p := ParsedInvoice{
		Dialect:    DialectUBL,
		Number:     doc.Number,
		IssueDate:  strings.TrimSpace(doc.IssueDate),
		DueDate:    strings.TrimSpace(doc.DueDate),
		Currency:   doc.Currency,
		SellerName: doc.Seller,
		BuyerName:  doc.Buyer,
	}
	p.Subtotal = parseAmount(doc.Subtotal)
	p.VATTotal = parseAmount(doc.VATTotal)
	p.Total = parseAmount(doc.Total)
	return p, nil
}

// isoFromCIIDate converts a CII format-102 date (YYYYMMDD) to an ISO day.
// Unparseable values are passed through untouched; extraction is best
// effort by design.
func isoFromCIIDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return s
	}
	return s[0:4] + "-" + s[4:6] + "-" + s[6:8]
}

// parseAmount reads a decimal amount, tolerating surrounding whitespace.
// Missing or malformed amounts come back as zero rather than failing the
// whole extraction.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
