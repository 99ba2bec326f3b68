package einvoice

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	nsUBLInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsCAC        = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsCBC        = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"

	// X-Rechnung 3.0 CIUS on top of EN16931.
	ublCustomizationID = "urn:cen.eu:en16931:2017#compliant#urn:xeinkauf.de:kosit:xrechnung_3.0"
	ublProfileID       = "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0"
)

type ublInvoice struct {
	XMLName  xml.Name `xml:"Invoice"`
	Xmlns    string   `xml:"xmlns,attr"`
	XmlnsCAC string   `xml:"xmlns:cac,attr"`
	XmlnsCBC string   `xml:"xmlns:cbc,attr"`

	CustomizationID string `xml:"cbc:CustomizationID"`
	ProfileID       string `xml:"cbc:ProfileID"`
	ID              string `xml:"cbc:ID"`
	IssueDate       string `xml:"cbc:IssueDate"`
	DueDate         string `xml:"cbc:DueDate,omitempty"`
	InvoiceTypeCode string `xml:"cbc:InvoiceTypeCode"`
	Note            string `xml:"cbc:Note,omitempty"`
	CurrencyCode    string `xml:"cbc:DocumentCurrencyCode"`
	BuyerReference  string `xml:"cbc:BuyerReference,omitempty"`

	Supplier     ublPartyWrap     `xml:"cac:AccountingSupplierParty"`
	Customer     ublPartyWrap     `xml:"cac:AccountingCustomerParty"`
	PaymentMeans *ublPaymentMeans `xml:"cac:PaymentMeans,omitempty"`
	PaymentTerms *ublPaymentTerms `xml:"cac:PaymentTerms,omitempty"`
	TaxTotal     ublTaxTotal      `xml:"cac:TaxTotal"`
	Totals       ublMonetaryTotal `xml:"cac:LegalMonetaryTotal"`
	Lines        []ublLine        `xml:"cac:InvoiceLine"`
}

type ublPartyWrap struct {
	Party ublParty `xml:"cac:Party"`
}

type ublParty struct {
	Address     ublAddress     `xml:"cac:PostalAddress"`
	TaxScheme   *ublTaxScheme  `xml:"cac:PartyTaxScheme,omitempty"`
	LegalEntity ublLegalEntity `xml:"cac:PartyLegalEntity"`
	Contact     *ublContact    `xml:"cac:Contact,omitempty"`
}

type ublAddress struct {
	StreetName  string `xml:"cbc:StreetName"`
	CityName    string `xml:"cbc:CityName"`
	PostalZone  string `xml:"cbc:PostalZone"`
	CountryCode string `xml:"cac:Country>cbc:IdentificationCode"`
}

type ublTaxScheme struct {
	CompanyID string `xml:"cbc:CompanyID"`
	SchemeID  string `xml:"cac:TaxScheme>cbc:ID"`
}

type ublLegalEntity struct {
	RegistrationName string `xml:"cbc:RegistrationName"`
}

type ublContact struct {
	ElectronicMail string `xml:"cbc:ElectronicMail"`
}

type ublPaymentMeans struct {
	Code    string      `xml:"cbc:PaymentMeansCode"`
	Account *ublAccount `xml:"cac:PayeeFinancialAccount,omitempty"`
}

type ublAccount struct {
	IBAN string `xml:"cbc:ID"`
	Name string `xml:"cbc:Name,omitempty"`
	BIC  string `xml:"cac:FinancialInstitutionBranch>cbc:ID,omitempty"`
}

type ublPaymentTerms struct {
	Note string `xml:"cbc:Note"`
}

type ublTaxTotal struct {
	TaxAmount ublAmount     `xml:"cbc:TaxAmount"`
	Subtotals []ublSubtotal `xml:"cac:TaxSubtotal"`
}

type ublSubtotal struct {
	TaxableAmount ublAmount      `xml:"cbc:TaxableAmount"`
	TaxAmount     ublAmount      `xml:"cbc:TaxAmount"`
	Category      ublTaxCategory `xml:"cac:TaxCategory"`
}

type ublTaxCategory struct {
	ID       string `xml:"cbc:ID"`
	Percent  string `xml:"cbc:Percent"`
	SchemeID string `xml:"cac:TaxScheme>cbc:ID"`
}

type ublMonetaryTotal struct {
	LineExtension ublAmount `xml:"cbc:LineExtensionAmount"`
	TaxExclusive  ublAmount `xml:"cbc:TaxExclusiveAmount"`
	TaxInclusive  ublAmount `xml:"cbc:TaxInclusiveAmount"`
	Payable       ublAmount `xml:"cbc:PayableAmount"`
}

type ublLine struct {
	ID            string      `xml:"cbc:ID"`
	Quantity      ublQuantity `xml:"cbc:InvoicedQuantity"`
	LineExtension ublAmount   `xml:"cbc:LineExtensionAmount"`
	Item          ublItem     `xml:"cac:Item"`
	Price         ublPrice    `xml:"cac:Price"`
}

type ublQuantity struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type ublItem struct {
	Name        string         `xml:"cbc:Name"`
	TaxCategory ublTaxCategory `xml:"cac:ClassifiedTaxCategory"`
}

type ublPrice struct {
	PriceAmount ublAmount `xml:"cbc:PriceAmount"`
}

type ublAmount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

// GenerateUBL serializes the canonical invoice into UBL 2.1 Invoice XML
// with the X-Rechnung 3.0 customization, the syntax German public-sector
// buyers require. Pure and stateless; optional fields are omitted rather
// than erroring.
func GenerateUBL(inv Invoice) ([]byte, error) {
	doc := ublInvoice{
		Xmlns:    nsUBLInvoice,
		XmlnsCAC: nsCAC,
		XmlnsCBC: nsCBC,

		CustomizationID: ublCustomizationID,
		ProfileID:       ublProfileID,
		ID:              inv.Number,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		InvoiceTypeCode: inv.TypeCode,
		Note:            inv.Notes,
		CurrencyCode:    inv.Currency,
		BuyerReference:  inv.BuyerReference,

		Supplier: ublPartyWrap{Party: ublTradeParty(inv.Seller)},
		Customer: ublPartyWrap{Party: ublTradeParty(inv.Buyer)},
	}

	if inv.Payment != nil {
		if inv.Payment.IBAN != "" {
			doc.PaymentMeans = &ublPaymentMeans{
				Code: "58",
				Account: &ublAccount{
					IBAN: inv.Payment.IBAN,
					Name: inv.Payment.AccountName,
					BIC:  inv.Payment.BIC,
				},
			}
		}
		if inv.Payment.Terms != "" {
			doc.PaymentTerms = &ublPaymentTerms{Note: inv.Payment.Terms}
		}
	}

	doc.TaxTotal = ublTaxTotal{
		TaxAmount: ublMoney(inv, inv.VATTotal),
	}
	for _, td := range inv.TaxBreakdown {
		doc.TaxTotal.Subtotals = append(doc.TaxTotal.Subtotals, ublSubtotal{
			TaxableAmount: ublMoney(inv, td.BasisAmount),
			TaxAmount:     ublMoney(inv, td.TaxAmount),
			Category: ublTaxCategory{
				ID:       td.CategoryCode,
				Percent:  strconv.Itoa(td.Rate),
				SchemeID: "VAT",
			},
		})
	}

	doc.Totals = ublMonetaryTotal{
		LineExtension: ublMoney(inv, inv.Subtotal),
		TaxExclusive:  ublMoney(inv, inv.Subtotal),
		TaxInclusive:  ublMoney(inv, inv.Total),
		Payable:       ublMoney(inv, inv.Total),
	}

	for i, line := range inv.Lines {
		doc.Lines = append(doc.Lines, ublLine{
			ID: strconv.Itoa(i + 1),
			Quantity: ublQuantity{
				UnitCode: unitCode(line.UnitCode),
				Value:    line.Quantity.String(),
			},
			LineExtension: ublMoney(inv, line.LineTotal),
			Item: ublItem{
				Name: line.Description,
				TaxCategory: ublTaxCategory{
					ID:       taxCategory(line.VATRate),
					Percent:  strconv.Itoa(line.VATRate),
					SchemeID: "VAT",
				},
			},
			Price: ublPrice{PriceAmount: ublMoney(inv, line.UnitPrice)},
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling UBL invoice %s: %w", inv.Number, err)
	}
	return append([]byte(xml.Header), out...), nil
}

func ublTradeParty(p Party) ublParty {
	party := ublParty{
		Address: ublAddress{
			StreetName:  p.Street,
			CityName:    p.City,
			PostalZone:  p.PostalCode,
			CountryCode: p.CountryCode,
		},
		LegalEntity: ublLegalEntity{RegistrationName: p.Name},
	}
	if p.VATID != "" {
		party.TaxScheme = &ublTaxScheme{CompanyID: p.VATID, SchemeID: "VAT"}
	} else if p.TaxNumber != "" {
		party.TaxScheme = &ublTaxScheme{CompanyID: p.TaxNumber, SchemeID: "FC"}
	}
	if p.Email != "" {
		party.Contact = &ublContact{ElectronicMail: p.Email}
	}
	return party
}

func ublMoney(inv Invoice, d decimal.Decimal) ublAmount {
	return ublAmount{CurrencyID: inv.Currency, Value: d.StringFixed(2)}
}
