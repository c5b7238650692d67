// Package aeat implements the AEAT VeriFactu wire protocol: the SOAP
// envelope codec, the QR verification URL builder and the HTTPS transport
// with client-certificate authentication.
package aeat

import (
	"encoding/xml"
	"fmt"

	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/shared"
)

const (
	namespaceSoapEnv        = "http://schemas.xmlsoap.org/soap/envelope/"
	namespaceSuministroLR   = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroLR.xsd"
	namespaceSuministroInfo = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroInformacion.xsd"
	protocolVersion         = "1.0"
	communicationTypeAlta   = "A0"
	hashAlgorithmSHA256     = "01"
)

// SoftwareInfo identifies the invoicing software in the envelope header
type SoftwareInfo struct {
	DeveloperTaxID string
	ID             string
	Name           string
	Version        string
	License        string
}

// EnvelopeBuilder renders record batches into AEAT SuministroLR SOAP
// envelopes
type EnvelopeBuilder struct {
	software SoftwareInfo
}

// NewEnvelopeBuilder creates a new EnvelopeBuilder
func NewEnvelopeBuilder(software SoftwareInfo) *EnvelopeBuilder {
	return &EnvelopeBuilder{software: software}
}

type soapEnvelope struct {
	XMLName   xml.Name `xml:"soapenv:Envelope"`
	XmlnsSoap string   `xml:"xmlns:soapenv,attr"`
	XmlnsSiiR string   `xml:"xmlns:siiR,attr"`
	XmlnsSii  string   `xml:"xmlns:sii,attr"`
	Header    struct{} `xml:"soapenv:Header"`
	Body      soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Suministro suministroLR `xml:"siiR:SuministroLRFacturasEmitidas"`
}

type suministroLR struct {
	Cabecera cabecera       `xml:"sii:Cabecera"`
	Altas    []registroAlta `xml:"siiR:RegistroLRFacturasEmitidas,omitempty"`
	Bajas    []registroBaja `xml:"siiR:RegistroLRBajaExpedidas,omitempty"`
}

type cabecera struct {
	Version          string          `xml:"sii:IDVersionSii"`
	Titular          titular         `xml:"sii:Titular"`
	TipoComunicacion string          `xml:"sii:TipoComunicacion"`
	SoftwareGarante  softwareGarante `xml:"sii:SoftwareGarante"`
}

type titular struct {
	NombreRazon string `xml:"sii:NombreRazon"`
	NIF         string `xml:"sii:NIF"`
}

type softwareGarante struct {
	NIFDesarrollador string `xml:"sii:NIF"`
	IDSoftware       string `xml:"sii:IdSistemaInformatico"`
	Nombre           string `xml:"sii:NombreSistemaInformatico"`
	Version          string `xml:"sii:Version"`
	Licencia         string `xml:"sii:NumeroInstalacion"`
}

type idFactura struct {
	IDEmisorFactura        string `xml:"sii:IDEmisorFactura"`
	NumSerieFacturaEmisor  string `xml:"sii:NumSerieFacturaEmisor"`
	FechaExpedicionFactura string `xml:"sii:FechaExpedicionFactura"`
}

type desgloseFactura struct {
	ClaveRegimen     string `xml:"sii:ClaveRegimenEspecialOTrascendencia"`
	TipoFactura      string `xml:"sii:TipoFactura"`
	BaseImponible    string `xml:"sii:BaseImponible"`
	TipoImpositivo   string `xml:"sii:TipoImpositivo"`
	CuotaRepercutida string `xml:"sii:CuotaRepercutida"`
	ImporteTotal     string `xml:"sii:ImporteTotal"`
}

type huella struct {
	TipoHuella   string  `xml:"sii:TipoHuella"`
	Hash         string  `xml:"sii:Hash"`
	HashAnterior *string `xml:"sii:HashAnterior,omitempty"`
}

type registroAlta struct {
	IDFactura idFactura       `xml:"siiR:IDFactura"`
	Desglose  desgloseFactura `xml:"siiR:DesgloseFactura"`
	Huella    huella          `xml:"siiR:Huella"`
}

type registroBaja struct {
	IDFactura idFactura `xml:"siiR:IDFactura"`
	Huella    huella    `xml:"siiR:Huella"`
}

// BuildEnvelope renders one SOAP envelope for a non-empty single-tenant
// record list. Registration and correction records become alta fragments,
// cancellations become baja fragments.
func (b *EnvelopeBuilder) BuildEnvelope(records []*ledger.LedgerRecord) (string, error) {
	if len(records) == 0 {
		return "", shared.NewDomainError(shared.CodeInvalidArgument, "cannot build an envelope without records")
	}
	tenantID := records[0].TenantID
	for _, record := range records[1:] {
		if record.TenantID != tenantID {
			return "", shared.NewDomainError(shared.CodeInvalidArgument, "cannot mix tenants in one envelope")
		}
	}

	envelope := soapEnvelope{
		XmlnsSoap: namespaceSoapEnv,
		XmlnsSiiR: namespaceSuministroLR,
		XmlnsSii:  namespaceSuministroInfo,
	}
	envelope.Body.Suministro.Cabecera = cabecera{
		Version: protocolVersion,
		Titular: titular{
			NombreRazon: records[0].IssuerLegalName,
			NIF:         records[0].IssuerTaxID,
		},
		TipoComunicacion: communicationTypeAlta,
		SoftwareGarante: softwareGarante{
			NIFDesarrollador: b.software.DeveloperTaxID,
			IDSoftware:       b.software.ID,
			Nombre:           b.software.Name,
			Version:          b.software.Version,
			Licencia:         b.software.License,
		},
	}

	for _, record := range records {
		id := idFactura{
			IDEmisorFactura:        record.IssuerTaxID,
			NumSerieFacturaEmisor:  record.InvoiceNumber,
			FechaExpedicionFactura: record.IssueDate.Format("02-01-2006"),
		}
		mark := huella{
			TipoHuella:   hashAlgorithmSHA256,
			Hash:         record.HashRecord,
			HashAnterior: record.HashPrevious,
		}
		if record.RecordType.IsCancellation() {
			envelope.Body.Suministro.Bajas = append(envelope.Body.Suministro.Bajas, registroBaja{
				IDFactura: id,
				Huella:    mark,
			})
			continue
		}
		envelope.Body.Suministro.Altas = append(envelope.Body.Suministro.Altas, registroAlta{
			IDFactura: id,
			Desglose: desgloseFactura{
				ClaveRegimen:     record.RegimeKey,
				TipoFactura:      record.InvoiceTypeCode,
				BaseImponible:    record.TaxBase.StringFixed(2),
				TipoImpositivo:   record.TaxRate.StringFixed(2),
				CuotaRepercutida: record.TaxAmount.StringFixed(2),
				ImporteTotal:     record.TotalAmount.StringFixed(2),
			},
			Huella: mark,
		})
	}

	out, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return xml.Header + string(out), nil
}
