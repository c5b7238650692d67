package aeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verifactu/backend/internal/domain/remision"
	"github.com/verifactu/backend/internal/domain/shared"
)

func TestParseResponse_FullSuccess(t *testing.T) {
	raw := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <siiR:RespuestaSuministro xmlns:siiR="https://example.invalid/SuministroLR.xsd">
      <siiR:CSV>A-7XK2Q9PMR4TBWL</siiR:CSV>
      <siiR:EstadoEnvio>Correcto</siiR:EstadoEnvio>
      <siiR:RespuestaLinea>
        <siiR:IDFactura>
          <sii:NumSerieFacturaEmisor xmlns:sii="https://example.invalid/SuministroInformacion.xsd">FAC-2026-001</sii:NumSerieFacturaEmisor>
        </siiR:IDFactura>
        <siiR:EstadoRegistro>Correcto</siiR:EstadoRegistro>
      </siiR:RespuestaLinea>
    </siiR:RespuestaSuministro>
  </env:Body>
</env:Envelope>`)

	response, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "A-7XK2Q9PMR4TBWL", response.CSV)
	assert.Equal(t, remision.StatusCorrecto, response.OverallStatus)
	require.Len(t, response.Lines, 1)
	assert.Equal(t, "FAC-2026-001", response.Lines[0].InvoiceNumber)
	assert.Equal(t, 1, response.AcceptedCount())
	assert.Equal(t, 0, response.RejectedCount())
}

func TestParseResponse_PartialRejection(t *testing.T) {
	raw := []byte(`<Envelope><Body><RespuestaSuministro>
  <CSV>A-CSV</CSV>
  <EstadoEnvio>ParcialmenteCorrecto</EstadoEnvio>
  <RespuestaLinea>
    <NumSerieFacturaEmisor>FAC-2026-001</NumSerieFacturaEmisor>
    <EstadoRegistro>Correcto</EstadoRegistro>
  </RespuestaLinea>
  <RespuestaLinea>
    <NumSerieFacturaEmisor>FAC-2026-002</NumSerieFacturaEmisor>
    <EstadoRegistro>Incorrecto</EstadoRegistro>
    <CodigoErrorRegistro>4102</CodigoErrorRegistro>
    <DescripcionErrorRegistro>NIF no identificado</DescripcionErrorRegistro>
  </RespuestaLinea>
</RespuestaSuministro></Body></Envelope>`)

	response, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, remision.StatusParcialmenteCorrect, response.OverallStatus)
	assert.Equal(t, 1, response.AcceptedCount())
	assert.Equal(t, 1, response.RejectedCount())

	line, ok := response.LineFor("FAC-2026-002")
	require.True(t, ok)
	assert.Equal(t, "4102", line.ErrorCode)
	assert.Equal(t, "NIF no identificado", line.ErrorMessage)
	assert.False(t, line.Accepted())
}

func TestParseResponse_ClassifiesWithoutGlobalStatus(t *testing.T) {
	raw := []byte(`<Respuesta>
  <RespuestaLinea>
    <NumSerieFacturaEmisor>FAC-2026-001</NumSerieFacturaEmisor>
    <EstadoRegistro>Incorrecto</EstadoRegistro>
  </RespuestaLinea>
</Respuesta>`)

	response, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, remision.StatusIncorrecto, response.OverallStatus)
}

func TestParseResponse_AcceptedWithErrorsCountsAsAccepted(t *testing.T) {
	raw := []byte(`<Respuesta>
  <EstadoEnvio>AceptadoConErrores</EstadoEnvio>
  <RespuestaLinea>
    <NumSerieFacturaEmisor>FAC-2026-001</NumSerieFacturaEmisor>
    <EstadoRegistro>AceptadoConErrores</EstadoRegistro>
    <CodigoErrorRegistro>2001</CodigoErrorRegistro>
  </RespuestaLinea>
</Respuesta>`)

	response, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, response.AcceptedCount())
	line, _ := response.LineFor("FAC-2026-001")
	assert.True(t, line.Accepted())
}

func TestParseResponse_SoapFault(t *testing.T) {
	raw := []byte(`<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <env:Fault>
      <faultcode>env:Server</faultcode>
      <faultstring>Codigo[-1].Servicio no disponible</faultstring>
    </env:Fault>
  </env:Body>
</env:Envelope>`)

	_, err := ParseResponse(raw)
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeAeatCommunication, domainErr.Code)
	assert.Contains(t, domainErr.Message, "Servicio no disponible")
}

func TestParseResponse_MalformedXML(t *testing.T) {
	_, err := ParseResponse([]byte(`<Respuesta><EstadoEnvio>Correcto`))

	// truncated documents either fail the decode or carry no status
	if err == nil {
		t.Fatal("expected an error for malformed XML")
	}
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeAeatCommunication, domainErr.Code)
}

func TestParseResponse_EmptyBody(t *testing.T) {
	_, err := ParseResponse([]byte(`<Envelope><Body></Body></Envelope>`))
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeAeatCommunication, domainErr.Code)
}

func TestParseResponse_WaitSeconds(t *testing.T) {
	raw := []byte(`<Respuesta>
  <EstadoEnvio>Correcto</EstadoEnvio>
  <TiempoEsperaEnvio>60</TiempoEsperaEnvio>
</Respuesta>`)

	response, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 60, response.WaitSeconds)
}
