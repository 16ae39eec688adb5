package summary

import (
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

// Metadata is the snapshot of the fields a document lends to its
// counterparts. It has exactly two implementations, *ManifestMetadata and
// *InvoiceMetadata; consumers switch on the concrete type.
type Metadata interface {
	// Entries lists destination field and value pairs in injection order.
	Entries() []Entry

	metadata()
}

// Entry is one value a document lends to a field of its counterpart.
type Entry struct {
	Field types.Field
	Value string
}

// ManifestMetadata holds the 16 fields a CT-e lends to an NF-e.
type ManifestMetadata struct {
	SenderCNPJ1      string
	SenderCNPJ2      string
	PayerRole1       string
	PayerRole2       string
	PayerCNPJ1       string
	PayerCNPJ2       string
	OriginState      string
	OriginCity       string
	DestinationState string
	DestinationCity  string
	RecipientCNPJ    string
	RecipientName    string
	DeliveryPlace    string
	OperationNature  string
	GeneralNotes     string
	CFOPDescription  string
}

// InvoiceMetadata holds the 10 fields an NF-e lends to a CT-e.
type InvoiceMetadata struct {
	TaxpayerName      string
	ParticipantName   string
	Notes             string
	ImportDeclaration string
	CFOPDescription   string
	GoodsDescription  string
	NCM               string
	NCMDescription    string
	COFINSDescription string
	PISDescription    string
}

func (*ManifestMetadata) metadata() {}
func (*InvoiceMetadata) metadata()  {}

// Entries implements Metadata.
func (m *ManifestMetadata) Entries() []Entry {
	return []Entry{
		{types.FieldSenderCNPJ1, m.SenderCNPJ1},
		{types.FieldSenderCNPJ2, m.SenderCNPJ2},
		{types.FieldPayerRole1, m.PayerRole1},
		{types.FieldPayerRole2, m.PayerRole2},
		{types.FieldPayerCNPJ1, m.PayerCNPJ1},
		{types.FieldPayerCNPJ2, m.PayerCNPJ2},
		{types.FieldOriginState, m.OriginState},
		{types.FieldOriginCity, m.OriginCity},
		{types.FieldDestinationState, m.DestinationState},
		{types.FieldDestinationCity, m.DestinationCity},
		{types.FieldRecipientCNPJ, m.RecipientCNPJ},
		{types.FieldRecipientName, m.RecipientName},
		{types.FieldDeliveryPlace, m.DeliveryPlace},
		{types.FieldOperationNature, m.OperationNature},
		{types.FieldGeneralNotes, m.GeneralNotes},
		{types.FieldCFOPDescription, m.CFOPDescription},
	}
}

// Entries implements Metadata. The NCM code is not listed: it replaces the
// destination value instead of being appended (see HasValidNCM).
func (m *InvoiceMetadata) Entries() []Entry {
	return []Entry{
		{types.FieldTaxpayerName, m.TaxpayerName},
		{types.FieldParticipantName, m.ParticipantName},
		{types.FieldNotes, m.Notes},
		{types.FieldImportDeclaration, m.ImportDeclaration},
		{types.FieldCFOPDescription, m.CFOPDescription},
		{types.FieldGoodsDescription, m.GoodsDescription},
		{types.FieldNCMDescription, m.NCMDescription},
		{types.FieldCOFINSDescription, m.COFINSDescription},
		{types.FieldPISDescription, m.PISDescription},
	}
}

// HasValidNCM reports whether the NCM code holds a non-zero digit.
func (m *InvoiceMetadata) HasValidNCM() bool {
	return normalize.HasNonZeroDigit(m.NCM)
}

// =============================================================================
// CAPTURE
// =============================================================================

// CaptureManifest snapshots the fields of a CT-e row.
// Free-text fields have their runs of spaces collapsed.
func CaptureManifest(r *types.Record) *ManifestMetadata {
	return &ManifestMetadata{
		SenderCNPJ1:      r.Get(types.FieldSenderCNPJ1),
		SenderCNPJ2:      r.Get(types.FieldSenderCNPJ2),
		PayerRole1:       r.Get(types.FieldPayerRole1),
		PayerRole2:       r.Get(types.FieldPayerRole2),
		PayerCNPJ1:       r.Get(types.FieldPayerCNPJ1),
		PayerCNPJ2:       r.Get(types.FieldPayerCNPJ2),
		OriginState:      r.Get(types.FieldOriginState),
		OriginCity:       r.Get(types.FieldOriginCity),
		DestinationState: r.Get(types.FieldDestinationState),
		DestinationCity:  r.Get(types.FieldDestinationCity),
		RecipientCNPJ:    r.Get(types.FieldRecipientCNPJ),
		RecipientName:    r.Get(types.FieldRecipientName),
		DeliveryPlace:    r.Get(types.FieldDeliveryPlace),
		OperationNature:  normalize.CollapseSpaces(r.Get(types.FieldOperationNature)),
		GeneralNotes:     normalize.CollapseSpaces(r.Get(types.FieldGeneralNotes)),
		CFOPDescription:  r.Get(types.FieldCFOPDescription),
	}
}

// CaptureInvoice snapshots the fields of an NF-e row.
// The goods description has its runs of spaces collapsed.
func CaptureInvoice(r *types.Record) *InvoiceMetadata {
	return &InvoiceMetadata{
		TaxpayerName:      r.Get(types.FieldTaxpayerName),
		ParticipantName:   r.Get(types.FieldParticipantName),
		Notes:             r.Get(types.FieldNotes),
		ImportDeclaration: r.Get(types.FieldImportDeclaration),
		CFOPDescription:   r.Get(types.FieldCFOPDescription),
		GoodsDescription:  normalize.CollapseSpaces(r.Get(types.FieldGoodsDescription)),
		NCM:               r.Get(types.FieldNCM),
		NCMDescription:    r.Get(types.FieldNCMDescription),
		COFINSDescription: r.Get(types.FieldCOFINSDescription),
		PISDescription:    r.Get(types.FieldPISDescription),
	}
}
