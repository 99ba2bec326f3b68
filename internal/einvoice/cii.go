package einvoice

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Namespace set of the UN/CEFACT Cross Industry Invoice D16B schema.
const (
	nsRSM = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
	nsRAM = "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
	nsUDT = "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"

	// ZUGFeRD 2.1 Comfort conforms to the plain EN16931 guideline.
	ciiGuidelineID = "urn:cen.eu:en16931:2017"
)

type ciiInvoice struct {
	XMLName  xml.Name `xml:"rsm:CrossIndustryInvoice"`
	XmlnsRSM string   `xml:"xmlns:rsm,attr"`
	XmlnsRAM string   `xml:"xmlns:ram,attr"`
	XmlnsUDT string   `xml:"xmlns:udt,attr"`

	Context     ciiContext     `xml:"rsm:ExchangedDocumentContext"`
	Document    ciiDocument    `xml:"rsm:ExchangedDocument"`
	Transaction ciiTransaction `xml:"rsm:SupplyChainTradeTransaction"`
}

type ciiContext struct {
	GuidelineID string `xml:"ram:GuidelineSpecifiedDocumentContextParameter>ram:ID"`
}

type ciiDocument struct {
	ID        string       `xml:"ram:ID"`
	TypeCode  string       `xml:"ram:TypeCode"`
	IssueDate ciiDateTime  `xml:"ram:IssueDateTime"`
	Note      *ciiNote     `xml:"ram:IncludedNote,omitempty"`
}

type ciiNote struct {
	Content string `xml:"ram:Content"`
}

type ciiDateTime struct {
	DateString ciiDateString `xml:"udt:DateTimeString"`
}

type ciiDateString struct {
	Format string `xml:"format,attr"`
	Value  string `xml:",chardata"`
}

type ciiTransaction struct {
	Lines      []ciiLine     `xml:"ram:IncludedSupplyChainTradeLineItem"`
	Agreement  ciiAgreement  `xml:"ram:ApplicableHeaderTradeAgreement"`
	Delivery   struct{}      `xml:"ram:ApplicableHeaderTradeDelivery"`
	Settlement ciiSettlement `xml:"ram:ApplicableHeaderTradeSettlement"`
}

type ciiLine struct {
	LineID     string           `xml:"ram:AssociatedDocumentLineDocument>ram:LineID"`
	Product    ciiProduct       `xml:"ram:SpecifiedTradeProduct"`
	Agreement  ciiLineAgreement `xml:"ram:SpecifiedLineTradeAgreement"`
	Quantity   ciiQuantity      `xml:"ram:SpecifiedLineTradeDelivery>ram:BilledQuantity"`
	Settlement ciiLineSettle    `xml:"ram:SpecifiedLineTradeSettlement"`
}

type ciiProduct struct {
	Name string `xml:"ram:Name"`
}

type ciiLineAgreement struct {
	ChargeAmount string `xml:"ram:NetPriceProductTradePrice>ram:ChargeAmount"`
}

type ciiQuantity struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type ciiLineSettle struct {
	Tax       ciiTradeTax `xml:"ram:ApplicableTradeTax"`
	LineTotal string      `xml:"ram:SpecifiedTradeSettlementLineMonetarySummation>ram:LineTotalAmount"`
}

type ciiTradeTax struct {
	CalculatedAmount string `xml:"ram:CalculatedAmount,omitempty"`
	TypeCode         string `xml:"ram:TypeCode"`
	BasisAmount      string `xml:"ram:BasisAmount,omitempty"`
	CategoryCode     string `xml:"ram:CategoryCode"`
	RatePercent      string `xml:"ram:RateApplicablePercent"`
}

type ciiAgreement struct {
	BuyerReference string   `xml:"ram:BuyerReference,omitempty"`
	Seller         ciiParty `xml:"ram:SellerTradeParty"`
	Buyer          ciiParty `xml:"ram:BuyerTradeParty"`
}

type ciiParty struct {
	Name             string            `xml:"ram:Name"`
	Address          ciiAddress        `xml:"ram:PostalTradeAddress"`
	Email            *ciiEmail         `xml:"ram:URIUniversalCommunication,omitempty"`
	TaxRegistrations []ciiRegistration `xml:"ram:SpecifiedTaxRegistration,omitempty"`
}

type ciiEmail struct {
	URIID string `xml:"ram:URIID"`
}

type ciiAddress struct {
	PostcodeCode string `xml:"ram:PostcodeCode"`
	LineOne      string `xml:"ram:LineOne"`
	CityName     string `xml:"ram:CityName"`
	CountryID    string `xml:"ram:CountryID"`
}

type ciiRegistration struct {
	ID ciiSchemeID `xml:"ram:ID"`
}

type ciiSchemeID struct {
	SchemeID string `xml:"schemeID,attr"`
	Value    string `xml:",chardata"`
}

type ciiSettlement struct {
	CurrencyCode string          `xml:"ram:InvoiceCurrencyCode"`
	PaymentMeans *ciiPayMeans    `xml:"ram:SpecifiedTradeSettlementPaymentMeans,omitempty"`
	Taxes        []ciiTradeTax   `xml:"ram:ApplicableTradeTax"`
	PaymentTerms *ciiPayTerms    `xml:"ram:SpecifiedTradePaymentTerms,omitempty"`
	Summation    ciiSummation    `xml:"ram:SpecifiedTradeSettlementHeaderMonetarySummation"`
}

type ciiPayMeans struct {
	TypeCode string `xml:"ram:TypeCode"`
	IBAN     string `xml:"ram:PayeePartyCreditorFinancialAccount>ram:IBANID"`
	BIC      string `xml:"ram:PayeeSpecifiedCreditorFinancialInstitution>ram:BICID,omitempty"`
}

type ciiPayTerms struct {
	Description string       `xml:"ram:Description,omitempty"`
	DueDate     *ciiDateTime `xml:"ram:DueDateDateTime,omitempty"`
}

type ciiSummation struct {
	LineTotal     string    `xml:"ram:LineTotalAmount"`
	TaxBasisTotal string    `xml:"ram:TaxBasisTotalAmount"`
	TaxTotal      ciiAmount `xml:"ram:TaxTotalAmount"`
	GrandTotal    string    `xml:"ram:GrandTotalAmount"`
	DuePayable    string    `xml:"ram:DuePayableAmount"`
}

type ciiAmount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

// GenerateCII serializes the canonical invoice into UN/CEFACT Cross
// Industry Invoice XML, the syntax used by ZUGFeRD 2.1 in its Comfort
// (EN16931) profile. The generator is pure and stateless; optional inputs
// (payment details, notes, due date) are simply omitted from the output.
func GenerateCII(inv Invoice) ([]byte, error) {
	doc := ciiInvoice{
		XmlnsRSM: nsRSM,
		XmlnsRAM: nsRAM,
		XmlnsUDT: nsUDT,
		Context:  ciiContext{GuidelineID: ciiGuidelineID},
		Document: ciiDocument{
			ID:        inv.Number,
			TypeCode:  inv.TypeCode,
			IssueDate: ciiDate(inv.IssueDate),
		},
	}
	if inv.Notes != "" {
		doc.Document.Note = &ciiNote{Content: inv.Notes}
	}

	for i, line := range inv.Lines {
		doc.Transaction.Lines = append(doc.Transaction.Lines, ciiLine{
			LineID:    strconv.Itoa(i + 1),
			Product:   ciiProduct{Name: line.Description},
			Agreement: ciiLineAgreement{ChargeAmount: money(line.UnitPrice)},
			Quantity: ciiQuantity{
				UnitCode: unitCode(line.UnitCode),
				Value:    line.Quantity.String(),
			},
			Settlement: ciiLineSettle{
				Tax: ciiTradeTax{
					TypeCode:     "VAT",
					CategoryCode: taxCategory(line.VATRate),
					RatePercent:  strconv.Itoa(line.VATRate),
				},
				LineTotal: money(line.LineTotal),
			},
		})
	}

	doc.Transaction.Agreement = ciiAgreement{
		BuyerReference: inv.BuyerReference,
		Seller:         ciiTradeParty(inv.Seller),
		Buyer:          ciiTradeParty(inv.Buyer),
	}

	settle := ciiSettlement{
		CurrencyCode: inv.Currency,
		Summation: ciiSummation{
			LineTotal:     money(inv.Subtotal),
			TaxBasisTotal: money(inv.Subtotal),
			TaxTotal:      ciiAmount{CurrencyID: inv.Currency, Value: money(inv.VATTotal)},
			GrandTotal:    money(inv.Total),
			DuePayable:    money(inv.Total),
		},
	}
	for _, td := range inv.TaxBreakdown {
		settle.Taxes = append(settle.Taxes, ciiTradeTax{
			CalculatedAmount: money(td.TaxAmount),
			TypeCode:         "VAT",
			BasisAmount:      money(td.BasisAmount),
			CategoryCode:     td.CategoryCode,
			RatePercent:      strconv.Itoa(td.Rate),
		})
	}
	if inv.Payment != nil && inv.Payment.IBAN != "" {
		settle.PaymentMeans = &ciiPayMeans{
			TypeCode: "58", // SEPA credit transfer
			IBAN:     inv.Payment.IBAN,
			BIC:      inv.Payment.BIC,
		}
	}
	if inv.DueDate != "" || (inv.Payment != nil && inv.Payment.Terms != "") {
		terms := &ciiPayTerms{}
		if inv.Payment != nil {
			terms.Description = inv.Payment.Terms
		}
		if inv.DueDate != "" {
			d := ciiDate(inv.DueDate)
			terms.DueDate = &d
		}
		settle.PaymentTerms = terms
	}
	doc.Transaction.Settlement = settle

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling CII invoice %s: %w", inv.Number, err)
	}
	return append([]byte(xml.Header), out...), nil
}

func ciiTradeParty(p Party) ciiParty {
	party := ciiParty{
		Name: p.Name,
		Address: ciiAddress{
			PostcodeCode: p.PostalCode,
			LineOne:      p.Street,
			CityName:     p.City,
			CountryID:    p.CountryCode,
		},
	}
	if p.Email != "" {
		party.Email = &ciiEmail{URIID: p.Email}
	}
	if p.VATID != "" {
		party.TaxRegistrations = append(party.TaxRegistrations,
			ciiRegistration{ID: ciiSchemeID{SchemeID: "VA", Value: p.VATID}})
	}
	if p.TaxNumber != "" {
		party.TaxRegistrations = append(party.TaxRegistrations,
			ciiRegistration{ID: ciiSchemeID{SchemeID: "FC", Value: p.TaxNumber}})
	}
	return party
}

// ciiDate renders an ISO day in the CII "102" format, YYYYMMDD.
func ciiDate(isoDay string) ciiDateTime {
	return ciiDateTime{DateString: ciiDateString{
		Format: "102",
		Value:  strings.ReplaceAll(isoDay, "-", ""),
	}}
}

func unitCode(code string) string {
	if code == "" {
		return "C62"
	}
	return code
}

// taxCategory maps a German VAT rate to its UNTDID 5305 category.
func taxCategory(rate int) string {
	if rate == 0 {
		return "Z"
	}
	return "S"
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
