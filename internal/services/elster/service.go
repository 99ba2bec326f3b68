// Package elster prepares tax-authority submissions: the advance VAT
// return (USt-VA), the EC sales list (ZM) and the yearly profit
// statement, each wrapped in an Anmeldungssteuern envelope and persisted
// with a frozen snapshot of the figures it was built from.
package elster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/ledger"
	"github.com/steuerkern/api/internal/services/client"
	"github.com/steuerkern/api/internal/services/euer"
	"github.com/steuerkern/api/internal/services/settings"
	"github.com/steuerkern/api/internal/services/vatreturn"
)

// Declaration types.
const (
	TypeUStVA = "ust_va"
	TypeZM    = "zm"
	TypeEUER  = "euer"
)

// Submission statuses.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
)

// ErrDuplicate signals that a submission for this type and period
// already exists.
var ErrDuplicate = errors.New("submission already exists for this period")

// Kennzahl numbers of the advance return.
const (
	kzNet19     = 81
	kzNet7      = 86
	kzVorsteuer = 66
	kzZahllast  = 83
)

// Submission is one persisted declaration.
type Submission struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	PeriodKey      string          `json:"periodKey"`
	XMLPayload     string          `json:"xmlPayload"`
	Snapshot       json.RawMessage `json:"snapshot"`
	TestMode       bool            `json:"testMode"`
	Status         string          `json:"status"`
	TransferTicket string          `json:"transferTicket,omitempty"`
	ResponseXML    string          `json:"responseXml,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// BuildRequest names the declaration to prepare. Period is unused for
// the yearly types.
type BuildRequest struct {
	Type       string `json:"type"`
	Year       int    `json:"year"`
	Period     int    `json:"period"`
	PeriodType string `json:"periodType"`
	TestMode   bool   `json:"testMode"`
}

// Preview is the result of building a declaration without persisting it.
type Preview struct {
	Type      string          `json:"type"`
	PeriodKey string          `json:"periodKey"`
	XML       string          `json:"xml"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Warnings  []string        `json:"warnings"`
}

// VATSource computes advance return figures.
type VATSource interface {
	PeriodReport(ctx context.Context, year, period int, periodType string) (vatreturn.Report, error)
}

// EUERSource computes yearly profit statements.
type EUERSource interface {
	YearReport(ctx context.Context, year int) (euer.Report, error)
}

// RecordSource supplies the raw income rows the sales list is grouped
// from.
type RecordSource interface {
	IncomeInRange(ctx context.Context, r ledger.Range) ([]ledger.IncomeRecord, error)
}

// ClientSource supplies buyer identities for sales list grouping.
type ClientSource interface {
	List(ctx context.Context) ([]client.Client, error)
}

// SellerSource supplies the taxpayer identity for the envelope header.
type SellerSource interface {
	Seller(ctx context.Context) (settings.Seller, error)
}

// Service builds, persists and tracks submissions.
type Service struct {
	pool     *pgxpool.Pool
	vat      VATSource
	euer     EUERSource
	records  RecordSource
	clients  ClientSource
	settings SellerSource
	logger   *slog.Logger

	forceTestMode bool
}

// NewService creates a new submission service.
func NewService(pool *pgxpool.Pool, vat VATSource, euerSvc EUERSource, records RecordSource, clients ClientSource, sellerSrc SellerSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:     pool,
		vat:      vat,
		euer:     euerSvc,
		records:  records,
		clients:  clients,
		settings: sellerSrc,
		logger:   logger,
	}
}

// ForceTestMode makes Create flag every submission as test regardless of
// the request. Meant for environments without ELSTER production access.
func (s *Service) ForceTestMode(on bool) {
	s.forceTestMode = on
}

// Validate builds the declaration without persisting anything and
// attaches domain warnings on top of the computation.
func (s *Service) Validate(ctx context.Context, req BuildRequest) (Preview, error) {
	return s.build(ctx, req)
}

// Create builds the declaration and persists it as a draft submission.
// A second submission for the same type and period is refused.
func (s *Service) Create(ctx context.Context, req BuildRequest) (Submission, error) {
	prev, err := s.build(ctx, req)
	if err != nil {
		return Submission{}, err
	}

	sub := Submission{
		ID:         uuid.New(),
		Type:       prev.Type,
		PeriodKey:  prev.PeriodKey,
		XMLPayload: prev.XML,
		Snapshot:   prev.Snapshot,
		TestMode:   req.TestMode || s.forceTestMode,
		Status:     StatusDraft,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO submissions (id, type, period_key, xml_payload, snapshot, test_mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, sub.ID, sub.Type, sub.PeriodKey, sub.XMLPayload, []byte(sub.Snapshot), sub.TestMode,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if isUniqueViolation(err) {
		return Submission{}, fmt.Errorf("%s %s: %w", sub.Type, sub.PeriodKey, ErrDuplicate)
	}
	if err != nil {
		return Submission{}, fmt.Errorf("inserting submission: %w", err)
	}

	s.logger.Info("submission created", "id", sub.ID, "type", sub.Type, "period", sub.PeriodKey, "test_mode", sub.TestMode)
	return sub, nil
}

// StatusUpdate carries the authority's response for a status transition.
type StatusUpdate struct {
	Status         string `json:"status"`
	TransferTicket string `json:"transferTicket"`
	ResponseXML    string `json:"responseXml"`
	ErrorMessage   string `json:"errorMessage"`
}

// legalTransitions lists the allowed status moves. There are no
// automatic transitions; every move is an explicit call.
var legalTransitions = map[string][]string{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusAccepted, StatusRejected},
}

func transitionAllowed(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateStatus applies one legal status transition.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) (Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return Submission{}, err
	}

	if !transitionAllowed(sub.Status, upd.Status) {
		return Submission{}, apperr.Validation("cannot move submission from %s to %s", sub.Status, upd.Status)
	}

	// The status clause re-checks the transition at write time. A row
	// moved by a concurrent caller between the read and the update no
	// longer matches, so only one of two racing transitions wins.
	err = s.pool.QueryRow(ctx, `
		UPDATE submissions
		SET status = $2,
		    transfer_ticket = COALESCE(NULLIF($3, ''), transfer_ticket),
		    response_xml = COALESCE(NULLIF($4, ''), response_xml),
		    error_message = COALESCE(NULLIF($5, ''), error_message),
		    updated_at = now()
		WHERE id = $1 AND status = $6
		RETURNING status, COALESCE(transfer_ticket, ''), COALESCE(response_xml, ''), COALESCE(error_message, ''), updated_at
	`, id, upd.Status, upd.TransferTicket, upd.ResponseXML, upd.ErrorMessage, sub.Status,
	).Scan(&sub.Status, &sub.TransferTicket, &sub.ResponseXML, &sub.ErrorMessage, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, apperr.Validation("submission %s changed status concurrently, reload and retry", id)
	}
	if err != nil {
		return Submission{}, fmt.Errorf("updating submission %s: %w", id, err)
	}

	s.logger.Info("submission status changed", "id", id, "status", sub.Status)
	return sub, nil
}

// Get returns one submission.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx, selectSubmission+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, apperr.NotFound("submission", id.String())
	}
	if err != nil {
		return Submission{}, fmt.Errorf("getting submission %s: %w", id, err)
	}
	return sub, nil
}

// List returns all submissions, newest first.
func (s *Service) List(ctx context.Context) ([]Submission, error) {
	rows, err := s.pool.Query(ctx, selectSubmission+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Service) build(ctx context.Context, req BuildRequest) (Preview, error) {
	seller, err := s.settings.Seller(ctx)
	if apperr.IsNotFound(err) {
		return Preview{}, apperr.Validation("seller identity is not configured")
	}
	if err != nil {
		return Preview{}, err
	}

	switch req.Type {
	case TypeUStVA:
		return s.buildUStVA(ctx, req, seller)
	case TypeZM:
		return s.buildZM(ctx, req, seller)
	case TypeEUER:
		return s.buildEUER(ctx, req, seller)
	default:
		return Preview{}, apperr.Validation("submission type %q must be ust_va, zm or euer", req.Type)
	}
}

func (s *Service) buildUStVA(ctx context.Context, req BuildRequest, seller settings.Seller) (Preview, error) {
	rep, err := s.vat.PeriodReport(ctx, req.Year, req.Period, req.PeriodType)
	if err != nil {
		return Preview{}, err
	}

	kz := Kennzahlen{
		kzZahllast: {Amount: rep.Zahllast},
	}
	if !rep.Net19.IsZero() {
		kz[kzNet19] = Kennzahl{Amount: rep.Net19, Euros: true}
	}
	if !rep.Net7.IsZero() {
		kz[kzNet7] = Kennzahl{Amount: rep.Net7, Euros: true}
	}
	if !rep.Vorsteuer.IsZero() {
		kz[kzVorsteuer] = Kennzahl{Amount: rep.Vorsteuer}
	}

	env := newAnmeldung(req.Year)
	env.Datenlieferant = datenlieferant(seller)
	env.Unternehmer = unternehmer(seller)
	env.UStVA = &UStVA{
		Jahr:         req.Year,
		Zeitraum:     zeitraum(req.Period, req.PeriodType),
		Steuernummer: seller.TaxNumber,
		Kennzahlen:   kz,
	}

	xmlOut, err := encodeEnvelope(env)
	if err != nil {
		return Preview{}, err
	}

	var warnings []string
	if rep.TotalUmsatzsteuer.IsZero() && rep.Net19.IsZero() && rep.Net7.IsZero() {
		warnings = append(warnings, "no taxable turnover in this period")
	}
	if rep.Zahllast.IsNegative() {
		warnings = append(warnings, fmt.Sprintf("refund of %s outstanding", rep.Zahllast.Neg().StringFixed(2)))
	}

	return preview(TypeUStVA, periodKey(req), xmlOut, rep, warnings)
}

func (s *Service) buildZM(ctx context.Context, req BuildRequest, seller settings.Seller) (Preview, error) {
	if req.PeriodType != vatreturn.PeriodQuarter {
		return Preview{}, apperr.Validation("the sales list is reported per quarter")
	}
	if req.Period < 1 || req.Period > 4 {
		return Preview{}, apperr.Validation("quarter %d is out of range 1..4", req.Period)
	}
	r := ledger.QuarterRange(req.Year, req.Period)

	incomes, err := s.records.IncomeInRange(ctx, r)
	if err != nil {
		return Preview{}, fmt.Errorf("loading income for %s..%s: %w", r.Start, r.End, err)
	}
	clients, err := s.clients.List(ctx)
	if err != nil {
		return Preview{}, err
	}
	vatIDs := make(map[uuid.UUID]string, len(clients))
	for _, c := range clients {
		vatIDs[c.ID] = c.VATID
	}

	// Tax-free rows grouped by the buyer's VAT id; rows without one
	// cannot be reported and only surface as a warning.
	sums := make(map[string]decimal.Decimal)
	unattributed := 0
	for _, rec := range incomes {
		if rec.VATRate != ledger.RateZero {
			continue
		}
		var vatID string
		if rec.ClientID != nil {
			vatID = vatIDs[*rec.ClientID]
		}
		if vatID == "" {
			unattributed++
			continue
		}
		sums[vatID] = sums[vatID].Add(rec.NetAmount)
	}

	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	zm := &ZMMeldung{
		Jahr:         req.Year,
		Zeitraum:     fmt.Sprintf("Q%d", req.Period),
		Steuernummer: seller.TaxNumber,
	}
	for _, id := range ids {
		zm.Lines = append(zm.Lines, ZMLine{UStIDNr: id, Betrag: euroAmount(sums[id].Round(2))})
	}

	env := newAnmeldung(req.Year)
	env.Datenlieferant = datenlieferant(seller)
	env.Unternehmer = unternehmer(seller)
	env.ZM = zm

	xmlOut, err := encodeEnvelope(env)
	if err != nil {
		return Preview{}, err
	}

	var warnings []string
	if unattributed > 0 {
		warnings = append(warnings, fmt.Sprintf("%d tax-free income records lack a client VAT id and were not reported", unattributed))
	}
	if len(zm.Lines) == 0 {
		warnings = append(warnings, "no intra-EU turnover in this period")
	}

	return preview(TypeZM, periodKey(req), xmlOut, zm, warnings)
}

func (s *Service) buildEUER(ctx context.Context, req BuildRequest, seller settings.Seller) (Preview, error) {
	rep, err := s.euer.YearReport(ctx, req.Year)
	if err != nil {
		return Preview{}, err
	}

	meldung := &EURMeldung{
		Jahr:         req.Year,
		Steuernummer: seller.TaxNumber,
		Gewinn:       centAmount(rep.Gewinn),
	}
	for _, l := range rep.Income {
		meldung.Einnahmen = append(meldung.Einnahmen, EURLine{Bezeichnung: l.Name, Betrag: centAmount(l.Amount)})
	}
	for _, l := range rep.Expenses {
		meldung.Ausgaben = append(meldung.Ausgaben, EURLine{Bezeichnung: l.Name, Betrag: centAmount(l.Amount)})
	}

	env := newAnmeldung(req.Year)
	env.Datenlieferant = datenlieferant(seller)
	env.Unternehmer = unternehmer(seller)
	env.EUR = meldung

	xmlOut, err := encodeEnvelope(env)
	if err != nil {
		return Preview{}, err
	}

	return preview(TypeEUER, periodKey(req), xmlOut, rep, nil)
}

func preview(subType, key, xmlOut string, snapshot any, warnings []string) (Preview, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return Preview{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	return Preview{
		Type:      subType,
		PeriodKey: key,
		XML:       xmlOut,
		Snapshot:  raw,
		Warnings:  warnings,
	}, nil
}

func periodKey(req BuildRequest) string {
	switch req.Type {
	case TypeEUER:
		return fmt.Sprintf("%04d", req.Year)
	default:
		if req.PeriodType == vatreturn.PeriodMonth {
			return fmt.Sprintf("%04d-%02d", req.Year, req.Period)
		}
		return fmt.Sprintf("%04d-Q%d", req.Year, req.Period)
	}
}

// zeitraum renders the declaration period: two-digit month, or 41..44
// for the quarters as the form prescribes.
func zeitraum(period int, periodType string) string {
	if periodType == vatreturn.PeriodQuarter {
		return fmt.Sprintf("%d", 40+period)
	}
	return fmt.Sprintf("%02d", period)
}

func datenlieferant(seller settings.Seller) Datenlieferant {
	return Datenlieferant{
		Name:    seller.Name,
		Strasse: seller.Street,
		PLZ:     seller.PostalCode,
		Ort:     seller.City,
		Email:   seller.Email,
	}
}

func unternehmer(seller settings.Seller) Unternehmer {
	return Unternehmer{
		Name:    seller.Name,
		Strasse: seller.Street,
		PLZ:     seller.PostalCode,
		Ort:     seller.City,
		Email:   seller.Email,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const selectSubmission = `
	SELECT id, type, period_key, xml_payload, snapshot, test_mode, status,
	       COALESCE(transfer_ticket, ''), COALESCE(response_xml, ''), COALESCE(error_message, ''),
	       created_at, updated_at
	FROM submissions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var (
		sub Submission
		raw []byte
	)
	err := row.Scan(&sub.ID, &sub.Type, &sub.PeriodKey, &sub.XMLPayload, &raw, &sub.TestMode,
		&sub.Status, &sub.TransferTicket, &sub.ResponseXML, &sub.ErrorMessage,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return Submission{}, err
	}
	sub.Snapshot = json.RawMessage(raw)
	return sub, nil
}
