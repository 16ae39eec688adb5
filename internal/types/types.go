// =============================================================================
// CTe/NFe Enricher - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - csvparser   (reads and writes Records)
//   - aggregate   (captures metadata from Records)
//   - enrich      (injects metadata into Records)
//   - validation  (checks the dataset header against the Schema)
//   - xlsxparser  (loads header overrides for the Schema)
//
// =============================================================================

package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// LOGICAL FIELDS
// =============================================================================

// Field identifies one logical column of the fiscal dataset that the
// enricher reads or writes. All other columns are carried through untouched.
type Field int

const (
	// Core columns.
	FieldKey Field = iota
	FieldCancelled
	FieldItemValue
	FieldCrossReference
	FieldNCM

	// Columns a CT-e lends to an NF-e.
	FieldSenderCNPJ1
	FieldSenderCNPJ2
	FieldPayerRole1
	FieldPayerRole2
	FieldPayerCNPJ1
	FieldPayerCNPJ2
	FieldOriginState
	FieldOriginCity
	FieldDestinationState
	FieldDestinationCity
	FieldRecipientCNPJ
	FieldRecipientName
	FieldDeliveryPlace
	FieldOperationNature
	FieldGeneralNotes
	FieldCFOPDescription

	// Columns an NF-e lends to a CT-e (besides CFOP description and NCM).
	FieldTaxpayerName
	FieldParticipantName
	FieldNotes
	FieldImportDeclaration
	FieldGoodsDescription
	FieldNCMDescription
	FieldCOFINSDescription
	FieldPISDescription

	fieldCount
)

// AllFields lists every logical field in declaration order.
func AllFields() []Field {
	fields := make([]Field, fieldCount)
	for i := range fields {
		fields[i] = Field(i)
	}
	return fields
}

// fieldNames are the stable identifiers used in column templates and logs.
var fieldNames = [fieldCount]string{
	FieldKey:               "chave",
	FieldCancelled:         "cancelada",
	FieldItemValue:         "valor_item",
	FieldCrossReference:    "chave_de_acesso",
	FieldNCM:               "ncm",
	FieldSenderCNPJ1:       "remetente_cnpj1",
	FieldSenderCNPJ2:       "remetente_cnpj2",
	FieldPayerRole1:        "tomador_papel1",
	FieldPayerRole2:        "tomador_papel2",
	FieldPayerCNPJ1:        "tomador_cnpj1",
	FieldPayerCNPJ2:        "tomador_cnpj2",
	FieldOriginState:       "inicio_estado",
	FieldOriginCity:        "inicio_municipio",
	FieldDestinationState:  "termino_estado",
	FieldDestinationCity:   "termino_municipio",
	FieldRecipientCNPJ:     "destinatario_cnpj",
	FieldRecipientName:     "destinatario_nome",
	FieldDeliveryPlace:     "local_entrega",
	FieldOperationNature:   "descricao_natureza",
	FieldGeneralNotes:      "observacoes_gerais",
	FieldCFOPDescription:   "descricao_cfop",
	FieldTaxpayerName:      "contribuinte_nome",
	FieldParticipantName:   "participante_nome",
	FieldNotes:             "observacoes",
	FieldImportDeclaration: "numero_di",
	FieldGoodsDescription:  "descricao_mercadoria",
	FieldNCMDescription:    "descricao_ncm",
	FieldCOFINSDescription: "cst_descricao_cofins",
	FieldPISDescription:    "cst_descricao_pis",
}

// String returns the field identifier.
func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// FieldByName resolves a field identifier (case-insensitive).
func FieldByName(name string) (Field, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// =============================================================================
// DEFAULT HEADERS
// =============================================================================

// DefaultHeaders maps each logical field to its column header in the fiscal
// export ("Info da Receita sobre o Contribuinte").
//
// CUSTOMIZATION: Other exports can be supported without code changes by
// loading a column template (see xlsxparser.ParseColumnTemplate).
func DefaultHeaders() map[Field]string {
	const (
		servico = " de Conhecimento : ConhecimentoValoresPrestacaoServico-Componentes"
		infoNFe = " de Conhecimento : ConhecimentoInformacaoNFe"
	)

	return map[Field]string{
		FieldKey:            "Chave da Nota Fiscal Eletrônica : NF Item (Todos)",
		FieldCancelled:      "Cancelada : NF (Todos)",
		FieldItemValue:      "Valor da Nota Proporcional : NF Item (Todos) SOMA",
		FieldCrossReference: "Inf. NFe - Chave de acesso da NF-e : ConhecimentoInformacaoNFe",
		FieldNCM:            "Código NCM : NF Item (Todos)",

		FieldSenderCNPJ1:      "CTe - Remetente das mercadorias transportadas: CNPJ/CPF" + servico,
		FieldSenderCNPJ2:      "CTe - Remetente das mercadorias transportadas: CNPJ/CPF" + infoNFe,
		FieldPayerRole1:       "Descrição CTe - Indicador do 'papel' do tomador do serviço" + servico,
		FieldPayerRole2:       "Descrição CTe - Indicador do 'papel' do tomador do serviço" + infoNFe,
		FieldPayerCNPJ1:       "CTe - Outro tipo de Tomador: CNPJ/CPF" + servico,
		FieldPayerCNPJ2:       "CTe - Outro tipo de Tomador: CNPJ/CPF" + infoNFe,
		FieldOriginState:      "CTe - UF do início da prestação" + servico,
		FieldOriginCity:       "CTe - Nome do Município do início da prestação" + servico,
		FieldDestinationState: "CTe - UF do término da prestação" + servico,
		FieldDestinationCity:  "CTe - Nome do Município do término da prestação" + servico,
		FieldRecipientCNPJ:    "CTe - Informações do Destinatário do CT-e: CNPJ/CPF" + servico,
		FieldRecipientName:    "CTe - Informações do Destinatário do CT-e: Nome" + servico,
		FieldDeliveryPlace:    "CTe - Local de Entrega constante na Nota Fiscal: Nome" + servico,
		FieldOperationNature:  "Descrição da Natureza da Operação : NF Item (Todos)",
		FieldGeneralNotes:     "CTe - Observações Gerais de Conhecimento : ConhecimentoInformacaoNFe",
		FieldCFOPDescription:  "Descrição CFOP : NF Item (Todos)",

		FieldTaxpayerName:      "Nome do Contribuinte : NF Item (Todos)",
		FieldParticipantName:   "Nome do Participante : NF (Todos)",
		FieldNotes:             "Observações : NF (Todos)",
		FieldImportDeclaration: "Número da DI : NF Item (Todos)",
		FieldGoodsDescription:  "Descrição da Mercadoria/Serviço : NF Item (Todos)",
		FieldNCMDescription:    "Descrição NCM : NF Item (Todos)",
		FieldCOFINSDescription: "CST COFINS Descrição : NF Item (Todos)",
		FieldPISDescription:    "CST PIS Descrição : NF Item (Todos)",
	}
}

// =============================================================================
// SOURCE ERRORS
// =============================================================================

// SourceError is a fatal structural error tied to a location in an input
// file. It carries enough context to find and fix the offending line.
type SourceError struct {
	// Path is the input file.
	Path string

	// Line is the 1-indexed line number, or 0 when unknown.
	Line int

	// Content is the raw (or re-joined) content of the offending line.
	Content string

	// Err is the underlying cause.
	Err error
}

func (e *SourceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "structural error in <%s>", e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Content != "" {
		fmt.Fprintf(&b, "\ncontent: %s", e.Content)
	}
	return b.String()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
