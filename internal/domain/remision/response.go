package remision

// AEAT per-submission and per-line status literals as they appear on the wire.
const (
	StatusCorrecto            = "Correcto"
	StatusAceptadoConErrores  = "AceptadoConErrores"
	StatusParcialmenteCorrect = "ParcialmenteCorrecto"
	StatusIncorrecto          = "Incorrecto"
)

// LineResult is the AEAT verdict for a single record within a submission
type LineResult struct {
	InvoiceNumber string
	Status        string
	ErrorCode     string
	ErrorMessage  string
}

// Accepted returns true when AEAT registered the record, with or without
// non-blocking errors
func (r LineResult) Accepted() bool {
	return r.Status == StatusCorrecto || r.Status == StatusAceptadoConErrores
}

// AeatResponse is the parsed body of an AEAT submission response
type AeatResponse struct {
	CSV           string
	OverallStatus string
	WaitSeconds   int
	Lines         []LineResult
}

// Success returns true when AEAT accepted the submission as a whole
func (r *AeatResponse) Success() bool {
	return r.OverallStatus == StatusCorrecto
}

// FirstRejection returns the error message of the first refused line
func (r *AeatResponse) FirstRejection() string {
	for _, line := range r.Lines {
		if !line.Accepted() {
			if line.ErrorMessage != "" {
				return line.ErrorMessage
			}
			return line.ErrorCode
		}
	}
	return ""
}

// AcceptedCount tallies lines AEAT registered
func (r *AeatResponse) AcceptedCount() int {
	n := 0
	for _, line := range r.Lines {
		if line.Accepted() {
			n++
		}
	}
	return n
}

// RejectedCount tallies lines AEAT refused
func (r *AeatResponse) RejectedCount() int {
	return len(r.Lines) - r.AcceptedCount()
}

// LineFor finds the verdict for an invoice number, if present
func (r *AeatResponse) LineFor(invoiceNumber string) (LineResult, bool) {
	for _, line := range r.Lines {
		if line.InvoiceNumber == invoiceNumber {
			return line, true
		}
	}
	return LineResult{}, false
}
