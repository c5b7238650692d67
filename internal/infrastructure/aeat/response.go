package aeat

import (
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/verifactu/backend/internal/domain/remision"
	"github.com/verifactu/backend/internal/domain/shared"
)

// ParseResponse decodes an AEAT submission response body. The walk matches
// elements by local name only, so namespace prefix changes on the AEAT side
// do not break parsing. A SOAP fault or malformed XML yields an
// AEAT_COMMUNICATION error carrying the diagnostic.
func ParseResponse(raw []byte) (*remision.AeatResponse, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(raw)))
	response := &remision.AeatResponse{}

	var (
		path        []string
		currentLine *remision.LineResult
		faultString string
		inFault     bool
	)

	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, shared.NewCommunicationError("malformed AEAT response: " + err.Error())
		}

		switch t := token.(type) {
		case xml.StartElement:
			local := t.Name.Local
			path = append(path, local)
			switch local {
			case "Fault":
				inFault = true
			case "RespuestaLinea":
				currentLine = &remision.LineResult{}
			}
		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			switch t.Name.Local {
			case "Fault":
				inFault = false
			case "RespuestaLinea":
				if currentLine != nil {
					response.Lines = append(response.Lines, *currentLine)
					currentLine = nil
				}
			}
		case xml.CharData:
			if len(path) == 0 {
				continue
			}
			value := strings.TrimSpace(string(t))
			if value == "" {
				continue
			}
			switch path[len(path)-1] {
			case "faultstring":
				if inFault {
					faultString = value
				}
			case "CSV":
				response.CSV = value
			case "EstadoEnvio":
				response.OverallStatus = value
			case "TiempoEsperaEnvio":
				if seconds, err := strconv.Atoi(value); err == nil {
					response.WaitSeconds = seconds
				}
			case "NumSerieFacturaEmisor":
				if currentLine != nil {
					currentLine.InvoiceNumber = value
				}
			case "EstadoRegistro":
				if currentLine != nil {
					currentLine.Status = value
				}
			case "CodigoErrorRegistro":
				if currentLine != nil {
					currentLine.ErrorCode = value
				}
			case "DescripcionErrorRegistro":
				if currentLine != nil {
					currentLine.ErrorMessage = value
				}
			}
		}
	}

	if faultString != "" {
		return nil, shared.NewCommunicationError("SOAP fault: " + faultString)
	}
	if response.OverallStatus == "" && len(response.Lines) == 0 {
		return nil, shared.NewCommunicationError("AEAT response carries no status")
	}
	if response.OverallStatus == "" {
		response.OverallStatus = classify(response)
	}
	return response, nil
}

// classify derives the overall status from the line tallies when the body
// has no global status element
func classify(response *remision.AeatResponse) string {
	accepted := response.AcceptedCount()
	rejected := response.RejectedCount()
	switch {
	case rejected == 0:
		return remision.StatusCorrecto
	case accepted == 0:
		return remision.StatusIncorrecto
	default:
		return remision.StatusParcialmenteCorrect
	}
}
