// Package export renders a quotation as a downloadable PDF document.
package export

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/tegelkonst/cotizador/internal/domain"
	"github.com/tegelkonst/cotizador/internal/money"
)

// Fixed business identity printed on every quotation.
const (
	businessMaster = "Rigoberto Martínez"
	businessName   = "Tegel Konst"
	businessPhone  = "316 443 74 25"
	businessRole   = "Maestro Albañil a Cargo"
)

const (
	validityClause  = "La validez de los costos presentados en esta cotización no es superior a un mes a partir de la fecha de emisión."
	extraWorkClause = "Esta cotización sirve como evidencia de que, en caso de confusiones de trabajo o si el cliente solicita un arreglo o trabajo extra que no haya sido expresamente detallado y acordado en este documento, dicho trabajo no forma parte del costo final acordado y generará recargos adicionales."
)

var (
	brandBrown = props.Color{Red: 51, Green: 26, Blue: 5}
	brandGrey  = props.Color{Red: 229, Green: 229, Blue: 229}
	brandDark  = props.Color{Red: 23, Green: 23, Blue: 23}
	white      = props.Color{Red: 255, Green: 255, Blue: 255}
)

// RenderPDF renders the quotation as an A4 PDF and returns the raw bytes.
// A contract with no services renders a single-page error placeholder
// instead of a broken document.
func RenderPDF(contract *domain.ContractData, issuedAt time.Time) ([]byte, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Vertical).
		WithPageSize(pagesize.A4).
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	if contract == nil || len(contract.Services) == 0 {
		m.AddRows(
			row.New(10).Add(
				col.New(12).Add(
					text.New("Error: No hay datos válidos para generar el contrato", props.Text{
						Size:  12,
						Align: align.Left,
					}),
				),
			),
		)
		doc, err := m.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate quotation PDF: %w", err)
		}
		return doc.GetBytes(), nil
	}

	addHeader(m, contract, issuedAt)
	addDescription(m, contract)
	addServicesTable(m, contract)
	addTotals(m, contract)
	addNotes(m, contract)
	addSignature(m)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate quotation PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

// addHeader adds the title, the business identity block and the quotation
// metadata, separated from the body by the brand rule.
func addHeader(m core.Maroto, contract *domain.ContractData, issuedAt time.Time) {
	m.AddRows(
		row.New(10).Add(
			col.New(6).Add(
				text.New("COTIZACIÓN", props.Text{
					Size:  18,
					Style: fontstyle.Bold,
					Align: align.Left,
					Color: &brandDark,
				}),
			),
			col.New(6).Add(
				text.New(fmt.Sprintf("Fecha: %s", issuedAt.Format("2/1/2006")), props.Text{
					Size:  9,
					Align: align.Right,
					Color: &brandDark,
				}),
			),
		),
	)

	identity := []string{
		fmt.Sprintf("Maestro: %s", businessMaster),
		businessName,
		businessPhone,
	}
	meta := []string{
		fmt.Sprintf("Cotización #: %s", contract.QuoteNumber),
		fmt.Sprintf("Cliente: %s", contract.ClientName),
		"",
	}
	for i := range identity {
		m.AddRows(
			row.New(5).Add(
				col.New(6).Add(text.New(identity[i], props.Text{
					Size:  9,
					Align: align.Left,
					Color: &brandDark,
				})),
				col.New(6).Add(text.New(meta[i], props.Text{
					Size:  9,
					Align: align.Right,
					Color: &brandDark,
				})),
			),
		)
	}

	// Brand rule under the header
	m.AddRows(
		row.New(2).Add(
			col.New(12).WithStyle(&props.Cell{BackgroundColor: &brandBrown}),
		),
	)
	m.AddRows(row.New(4))
}

func addDescription(m core.Maroto, contract *domain.ContractData) {
	m.AddRows(
		row.New(8).Add(
			col.New(12).Add(text.New("Descripción del Trabajo", props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Align: align.Left,
				Color: &brandBrown,
			})),
		),
	)
	m.AddRows(
		row.New(8).Add(
			col.New(12).Add(text.New(contract.Description, props.Text{
				Size:  9,
				Align: align.Left,
				Color: &brandDark,
			})),
		),
	)
	m.AddRows(row.New(3))
}

// addServicesTable adds one row per service, with an italic note row right
// after any service carrying a non-empty reason.
func addServicesTable(m core.Maroto, contract *domain.ContractData) {
	m.AddRows(
		row.New(8).Add(
			col.New(12).Add(text.New("Desglose de Servicios", props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Align: align.Left,
				Color: &brandBrown,
			})),
		),
	)

	headerText := props.Text{
		Size:  9,
		Style: fontstyle.Bold,
		Align: align.Left,
		Color: &white,
	}
	headerCell := props.Cell{BackgroundColor: &brandBrown}
	m.AddRows(
		row.New(8).Add(
			col.New(5).Add(text.New("SERVICIO", headerText)).WithStyle(&headerCell),
			col.New(2).Add(text.New("CANT.", headerText)).WithStyle(&headerCell),
			col.New(3).Add(text.New("UNITARIO", headerText)).WithStyle(&headerCell),
			col.New(2).Add(text.New("SUBTOTAL", headerText)).WithStyle(&headerCell),
		),
	)

	bodyText := props.Text{Size: 9, Align: align.Left, Color: &brandDark}
	bodyRight := props.Text{Size: 9, Align: align.Right, Color: &brandDark}
	noteText := props.Text{
		Size:  8,
		Style: fontstyle.Italic,
		Align: align.Left,
		Color: &brandDark,
		Left:  4,
	}
	noteBg := props.Color{Red: 249, Green: 250, Blue: 251}

	for _, svc := range contract.Services {
		m.AddRows(
			row.New(7).Add(
				col.New(5).Add(text.New(svc.Item, bodyText)),
				col.New(2).Add(text.New(fmt.Sprintf("%v %s", svc.Quantity, svc.Unit), bodyText)),
				col.New(3).Add(text.New(money.FormatCOP(svc.UnitPrice), bodyRight)),
				col.New(2).Add(text.New(money.FormatCOP(svc.Subtotal), bodyRight)),
			),
		)
		if svc.Reason != "" {
			m.AddRows(
				row.New(6).Add(
					col.New(12).Add(text.New(fmt.Sprintf("Nota: %s", svc.Reason), noteText)).
						WithStyle(&props.Cell{BackgroundColor: &noteBg}),
				),
			)
		}
	}
	m.AddRows(row.New(3))
}

// addTotals adds the subtotal row and the emphasized final total.
func addTotals(m core.Maroto, contract *domain.ContractData) {
	totalBg := props.Cell{BackgroundColor: &brandGrey}

	m.AddRows(
		row.New(7).Add(
			col.New(6),
			col.New(3).Add(text.New("Subtotal:", props.Text{
				Size:  9,
				Style: fontstyle.Bold,
				Align: align.Left,
				Color: &brandDark,
			})).WithStyle(&totalBg),
			col.New(3).Add(text.New(money.FormatCOP(contract.SubtotalAmount), props.Text{
				Size:  9,
				Align: align.Right,
				Color: &brandDark,
			})).WithStyle(&totalBg),
		),
	)
	m.AddRows(
		row.New(9).Add(
			col.New(6),
			col.New(3).Add(text.New("TOTAL A PAGAR:", props.Text{
				Size:  10,
				Style: fontstyle.Bold,
				Align: align.Left,
				Color: &brandDark,
			})).WithStyle(&totalBg),
			col.New(3).Add(text.New(money.FormatCOP(contract.TotalAmount), props.Text{
				Size:  11,
				Style: fontstyle.Bold,
				Align: align.Right,
				Color: &brandBrown,
			})).WithStyle(&totalBg),
		),
	)
	m.AddRows(row.New(4))
}

// addNotes adds the contract's free-text notes followed by the fixed
// validity and extra-work clauses.
func addNotes(m core.Maroto, contract *domain.ContractData) {
	m.AddRows(
		row.New(8).Add(
			col.New(12).Add(text.New("Notas y Condiciones", props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Align: align.Left,
				Color: &brandBrown,
			})),
		),
	)

	noteStyle := props.Text{Size: 8, Align: align.Left, Color: &brandDark}
	if contract.Notes != "" {
		m.AddRows(
			row.New(7).Add(col.New(12).Add(text.New(contract.Notes, noteStyle))),
		)
	}
	m.AddRows(
		row.New(7).Add(col.New(12).Add(text.New(validityClause, noteStyle))),
	)
	m.AddRows(
		row.New(12).Add(col.New(12).Add(text.New(extraWorkClause, noteStyle))),
	)
}

func addSignature(m core.Maroto) {
	m.AddRows(row.New(10))

	lines := []struct {
		value string
		style fontstyle.Type
	}{
		{"Atentamente,", fontstyle.Normal},
		{businessMaster, fontstyle.Bold},
		{businessRole, fontstyle.Normal},
	}
	for _, line := range lines {
		m.AddRows(
			row.New(6).Add(
				col.New(12).Add(text.New(line.value, props.Text{
					Size:  9,
					Style: line.style,
					Align: align.Center,
					Color: &brandDark,
				})),
			),
		)
	}
}
